// Package testbackend is an in-memory implementation of the backend API
// for tests. It keeps users, companies, a flat object listing per company
// and image records, and can inject failures per endpoint or per image.
package testbackend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/protocol"
)

// User is a backend account.
type User struct {
	ID       string
	Password string
	Roles    []models.RoleRecord
	Info     models.UserInfo
}

// Backend is the fake API.
type Backend struct {
	mu        sync.Mutex
	users     map[string]*User // by username
	tokens    map[string]string
	companies map[string]models.Company
	objects   map[string]map[string]int64
	images    map[string]models.Image
	content   map[string][]byte
	nextImage int
	urlGen    int
	failPath  map[string]int
	failImage map[string]int
	requests  []string
	grants    []string

	srv *httptest.Server
}

// New starts a backend. Close it with Close.
func New() *Backend {
	b := &Backend{
		users:     make(map[string]*User),
		tokens:    make(map[string]string),
		companies: make(map[string]models.Company),
		objects:   make(map[string]map[string]int64),
		images:    make(map[string]models.Image),
		content:   make(map[string][]byte),
		failPath:  make(map[string]int),
		failImage: make(map[string]int),
	}
	b.srv = httptest.NewServer(b.routes())
	return b
}

// URL returns the base URL of the backend.
func (b *Backend) URL() string { return b.srv.URL }

// Close stops the server.
func (b *Backend) Close() { b.srv.Close() }

// AddUser registers an account.
func (b *Backend) AddUser(username string, u User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u.Info.UserID == "" {
		u.Info.UserID = u.ID
	}
	b.users[username] = &u
}

// AddCompany registers a company with an empty media root.
func (b *Backend) AddCompany(c models.Company) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.companies[c.CompanyID] = c
	if b.objects[c.CompanyID] == nil {
		b.objects[c.CompanyID] = map[string]int64{base(c.CompanyID): 0}
	}
}

// AddObject adds a raw storage key.
func (b *Backend) AddObject(companyID, key string, size int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects[companyID] == nil {
		b.objects[companyID] = map[string]int64{}
	}
	b.objects[companyID][key] = size
}

// AddImage adds an image record (and its storage key).
func (b *Backend) AddImage(img models.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.images[img.ImageID] = img
	if b.objects[img.CompanyID] == nil {
		b.objects[img.CompanyID] = map[string]int64{}
	}
	b.objects[img.CompanyID][img.FilePath+img.FileName] = img.Size
}

// Objects returns a copy of a company's listing.
func (b *Backend) Objects(companyID string) map[string]int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int64)
	for k, v := range b.objects[companyID] {
		out[k] = v
	}
	return out
}

// Image returns an image record.
func (b *Backend) Image(id string) (models.Image, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, ok := b.images[id]
	return img, ok
}

// FailPath makes every request to path answer with status.
func (b *Backend) FailPath(path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failPath, path)
		return
	}
	b.failPath[path] = status
}

// FailImage makes updates and deletes of one image answer with status.
func (b *Backend) FailImage(id string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failImage[id] = status
}

// RevokeTokens invalidates every issued token.
func (b *Backend) RevokeTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]string)
}

// Requests returns "METHOD path" for every request received.
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

// Grants returns the rights changes received, as "action role user company".
func (b *Backend) Grants() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.grants...)
}

func base(companyID string) string {
	return "company_images/company_" + companyID + "/"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func detail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Detail: msg})
}

type handler func(w http.ResponseWriter, r *http.Request, user *User)

func (b *Backend) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/token", b.login)
	mux.HandleFunc("GET /login/auth/{provider}/callback", b.oauthCallback)
	mux.HandleFunc("GET /objects/{id}", b.object)

	authed := map[string]handler{
		"GET /validate_token":                        func(w http.ResponseWriter, r *http.Request, u *User) { writeJSON(w, 200, map[string]string{"user_id": u.ID}) },
		"POST /login/refresh":                        b.refresh,
		"GET /user_role/get_user_roles":              func(w http.ResponseWriter, r *http.Request, u *User) { writeJSON(w, 200, u.Roles) },
		"GET /user/get_by_id":                        b.userByID,
		"GET /company/get_all":                       b.companiesAll,
		"GET /company/get_by_id":                     b.companyByID,
		"PATCH /company/update_by_id":                b.companyUpdate,
		"POST /company/create":                       b.companyCreate,
		"POST /user_role/grant_admin_privilege":      b.grant("grant", "promo_user_id"),
		"POST /user_role/revoke_admin_privilege":     b.grant("revoke", "demo_user_id"),
		"POST /role/delegate":                        b.delegate,
		"GET /s3_directory/get_objects_by_company_id": b.listObjects,
		"POST /s3_directory/create":                  b.createDir,
		"PATCH /s3_directory/rename":                 b.renameDir,
		"DELETE /s3_directory/delete":                b.deleteDir,
		"POST /image/upload":                         b.upload,
		"GET /image/get_images_company_by_id":        b.listImages,
		"GET /image/get_by_id":                       b.imageURL,
		"PATCH /image/update_by_id":                  b.updateImage,
		"DELETE /image/delete":                       b.deleteImage,
	}
	for pattern, h := range authed {
		mux.HandleFunc(pattern, b.auth(h))
	}
	return mux
}

func (b *Backend) auth(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		status := b.failPath[r.URL.Path]
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		username, ok := b.tokens[token]
		user := b.users[username]
		b.mu.Unlock()

		if !ok || user == nil {
			detail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		if status != 0 {
			detail(w, status, fmt.Sprintf("injected failure %d", status))
			return
		}
		h(w, r, user)
	}
}

func (b *Backend) issue(username string) string {
	token := fmt.Sprintf("tok-%s-%d", username, len(b.tokens)+1)
	b.tokens[token] = username
	return token
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		detail(w, http.StatusUnprocessableEntity, "form expected")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)
	u := b.users[r.FormValue("username")]
	if u == nil || u.Password != r.FormValue("password") || r.FormValue("grant_type") != "password" {
		detail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	writeJSON(w, 200, protocol.TokenResponse{AccessToken: b.issue(r.FormValue("username")), TokenType: "bearer", UserID: u.ID})
}

// oauthCallback accepts "code-<username>".
func (b *Backend) oauthCallback(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	username := strings.TrimPrefix(r.URL.Query().Get("code"), "code-")
	u := b.users[username]
	if u == nil {
		detail(w, http.StatusUnauthorized, "Invalid code")
		return
	}
	writeJSON(w, 200, protocol.TokenResponse{AccessToken: b.issue(username), UserID: u.ID})
}

func (b *Backend) refresh(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range b.tokens {
		if b.users[name] == u {
			writeJSON(w, 200, protocol.TokenResponse{AccessToken: b.issue(name), UserID: u.ID})
			return
		}
	}
	detail(w, http.StatusUnauthorized, "unknown user")
}

func (b *Backend) userByID(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := r.URL.Query().Get("user_id")
	for _, cand := range b.users {
		if cand.ID == id {
			writeJSON(w, 200, cand.Info)
			return
		}
	}
	detail(w, http.StatusNotFound, "User not found")
}

func (b *Backend) companiesAll(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := make([]models.Company, 0, len(b.companies))
	for _, c := range b.companies {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CompanyID < list[j].CompanyID })
	writeJSON(w, 200, protocol.CompaniesListResponse{Companies: list})
}

func (b *Backend) companyByID(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.companies[r.URL.Query().Get("company_id")]
	if !ok {
		detail(w, http.StatusNotFound, "Company not found")
		return
	}
	writeJSON(w, 200, c)
}

func (b *Backend) companyUpdate(w http.ResponseWriter, r *http.Request, u *User) {
	var req protocol.CompanyUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		detail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := r.URL.Query().Get("company_id")
	c, ok := b.companies[id]
	if !ok {
		detail(w, http.StatusNotFound, "Company not found")
		return
	}
	c.CompanyName, c.Address, c.Phone = req.CompanyName, req.Address, req.Phone
	b.companies[id] = c
	writeJSON(w, 200, c)
}

func (b *Backend) companyCreate(w http.ResponseWriter, r *http.Request, u *User) {
	var req protocol.CompanyCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		detail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("c%d", len(b.companies)+1)
	c := models.Company{
		CompanyID: id, CompanyName: req.CompanyName, Address: req.Address, Phone: req.Phone,
		Email: req.Email, IsActive: req.IsActive, AgeLimit: req.AgeLimit,
	}
	b.companies[id] = c
	b.objects[id] = map[string]int64{base(id): 0}
	writeJSON(w, 200, c)
}

func (b *Backend) grant(action, userParam string) handler {
	return func(w http.ResponseWriter, r *http.Request, u *User) {
		b.mu.Lock()
		defer b.mu.Unlock()
		q := r.URL.Query()
		b.grants = append(b.grants, strings.Join([]string{action, string(models.RoleAdmin), q.Get(userParam), q.Get("company_id")}, " "))
		writeJSON(w, 200, map[string]string{"status": "ok"})
	}
}

func (b *Backend) delegate(w http.ResponseWriter, r *http.Request, u *User) {
	var req protocol.DelegateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		detail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.grants = append(b.grants, strings.Join([]string{req.Action, string(req.Role), req.UserID, req.CompanyID}, " "))
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (b *Backend) listObjects(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	objs := b.objects[r.URL.Query().Get("company_id")]
	if objs == nil {
		objs = map[string]int64{}
	}
	writeJSON(w, 200, objs)
}

func validDirName(name string) bool {
	return strings.HasSuffix(name, "/") && len(name) > 1 &&
		!strings.Contains(strings.TrimSuffix(name, "/"), "/") &&
		!strings.ContainsAny(name, `\<>:"|?*`)
}

func (b *Backend) createDir(w http.ResponseWriter, r *http.Request, u *User) {
	var req protocol.CreateDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !validDirName(req.DirName) {
		detail(w, http.StatusUnprocessableEntity, "Invalid directory name")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	objs := b.objects[req.CompanyID]
	if objs == nil {
		detail(w, http.StatusNotFound, "Company not found")
		return
	}
	key := req.DirPath + req.DirName
	if _, exists := objs[key]; exists {
		detail(w, http.StatusBadRequest, "Directory already exists")
		return
	}
	objs[key] = 0
	writeJSON(w, 200, protocol.CreateDirectoryResponse{Success: 1})
}

func (b *Backend) renameDir(w http.ResponseWriter, r *http.Request, u *User) {
	var req protocol.RenameDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !validDirName(req.NewDirName) {
		detail(w, http.StatusUnprocessableEntity, "Invalid directory name")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	objs := b.objects[req.CompanyID]
	oldPath, newPath := req.DirPath+req.OldDirName, req.DirPath+req.NewDirName
	if _, ok := objs[oldPath]; !ok {
		detail(w, http.StatusNotFound, "Directory not found")
		return
	}
	if _, ok := objs[newPath]; ok {
		detail(w, http.StatusUnprocessableEntity, "Directory already exists")
		return
	}
	for k, v := range objs {
		if strings.HasPrefix(k, oldPath) {
			delete(objs, k)
			objs[newPath+strings.TrimPrefix(k, oldPath)] = v
		}
	}
	updated := []string{}
	for id, img := range b.images {
		if img.CompanyID == req.CompanyID && strings.HasPrefix(img.FilePath, oldPath) {
			img.FilePath = newPath + strings.TrimPrefix(img.FilePath, oldPath)
			b.images[id] = img
			updated = append(updated, id)
		}
	}
	sort.Strings(updated)
	writeJSON(w, 200, protocol.RenameDirectoryResponse{UpdatedImageIDs: updated})
}

// deleteDir removes dir_path and everything below it.
func (b *Backend) deleteDir(w http.ResponseWriter, r *http.Request, u *User) {
	var req protocol.DeleteDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		detail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	objs := b.objects[req.CompanyID]
	if _, ok := objs[req.DirPath]; !ok || req.DirPath == base(req.CompanyID) {
		detail(w, http.StatusNotFound, "Directory not found")
		return
	}
	for k := range objs {
		if strings.HasPrefix(k, req.DirPath) {
			delete(objs, k)
		}
	}
	deleted := []string{}
	for id, img := range b.images {
		if img.CompanyID == req.CompanyID && strings.HasPrefix(img.FilePath, req.DirPath) {
			delete(b.images, id)
			deleted = append(deleted, id)
		}
	}
	sort.Strings(deleted)
	writeJSON(w, 200, protocol.DeleteDirectoryResponse{DeletedImageIDs: deleted})
}

func (b *Backend) upload(w http.ResponseWriter, r *http.Request, u *User) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		detail(w, http.StatusUnprocessableEntity, "multipart form expected")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		detail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	data, _ := io.ReadAll(f)
	var meta protocol.UploadMetadata
	if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
		detail(w, http.StatusUnprocessableEntity, "metadata is required")
		return
	}
	var width, height int
	fmt.Sscan(meta.Width, &width)
	fmt.Sscan(meta.Height, &height)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextImage++
	img := models.Image{
		ImageID:   fmt.Sprintf("img-%d", b.nextImage),
		CompanyID: meta.CompanyID,
		FilePath:  meta.FilePath,
		FileName:  hdr.Filename,
		Title:     hdr.Filename,
		ImageType: hdr.Header.Get("Content-Type"),
		Size:      int64(len(data)),
		Width:     width,
		Height:    height,
		CreatorID: u.ID,
	}
	b.images[img.ImageID] = img
	b.content[img.ImageID] = data
	if b.objects[img.CompanyID] == nil {
		b.objects[img.CompanyID] = map[string]int64{}
	}
	b.objects[img.CompanyID][img.FilePath+img.FileName] = img.Size
	writeJSON(w, 200, protocol.ImageUploadResponse{ImageID: img.ImageID, FilePath: img.FilePath, FileName: img.FileName})
}

func (b *Backend) listImages(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	companyID := r.URL.Query().Get("company_id")
	list := []models.Image{}
	for _, img := range b.images {
		if img.CompanyID == companyID {
			list = append(list, img)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ImageID < list[j].ImageID })
	writeJSON(w, 200, protocol.ImageListResponse{Images: list})
}

func (b *Backend) imageURL(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := r.URL.Query().Get("image_id")
	if _, ok := b.images[id]; !ok {
		detail(w, http.StatusNotFound, "Image not found")
		return
	}
	b.urlGen++
	writeJSON(w, 200, protocol.ImageURLResponse{URL: fmt.Sprintf("%s/objects/%s?sig=%d", b.srv.URL, id, b.urlGen)})
}

// object serves image content at the signed URLs handed out by imageURL.
// Images added without content serve "content-<id>".
func (b *Backend) object(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b.mu.Lock()
	b.requests = append(b.requests, r.Method+" /objects/"+id)
	status := b.failPath[r.URL.Path]
	_, ok := b.images[id]
	data := b.content[id]
	b.mu.Unlock()

	switch {
	case status != 0:
		w.WriteHeader(status)
	case !ok || r.URL.Query().Get("sig") == "":
		w.WriteHeader(http.StatusForbidden)
	default:
		if data == nil {
			data = []byte("content-" + id)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	}
}

func (b *Backend) updateImage(w http.ResponseWriter, r *http.Request, u *User) {
	var req protocol.UpdateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FileName == "" {
		detail(w, http.StatusUnprocessableEntity, "Invalid file name")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := r.URL.Query().Get("image_id")
	if status := b.failImage[id]; status != 0 {
		detail(w, status, "injected failure")
		return
	}
	img, ok := b.images[id]
	if !ok {
		detail(w, http.StatusNotFound, "Image not found")
		return
	}
	objs := b.objects[img.CompanyID]
	delete(objs, img.FilePath+img.FileName)
	img.FileName, img.FilePath = req.FileName, req.FilePath
	objs[img.FilePath+img.FileName] = img.Size
	b.images[id] = img
	writeJSON(w, 200, protocol.UpdateImageResponse{UpdatedImageID: id})
}

func (b *Backend) deleteImage(w http.ResponseWriter, r *http.Request, u *User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := r.URL.Query().Get("image_id")
	if status := b.failImage[id]; status != 0 {
		detail(w, status, "injected failure")
		return
	}
	img, ok := b.images[id]
	if !ok {
		detail(w, http.StatusNotFound, "Image not found")
		return
	}
	delete(b.objects[img.CompanyID], img.FilePath+img.FileName)
	delete(b.images, id)
	writeJSON(w, 200, protocol.DeleteImageResponse{DeletedImageID: id})
}

// IssueToken returns a valid token for username without a login request.
func (b *Backend) IssueToken(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issue(username)
}
