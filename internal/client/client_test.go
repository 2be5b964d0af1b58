package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coffeestaff/portal/internal/protocol"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{BaseURL: ts.URL, AuthToken: "tok"})
	return c, ts
}

func TestLogin_Success(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/login/token" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send a bearer token")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("username") != "ada" || r.FormValue("password") != "pw" || r.FormValue("grant_type") != "password" {
			t.Errorf("form = %v", r.MultipartForm.Value)
		}
		json.NewEncoder(w).Encode(protocol.TokenResponse{AccessToken: "new-token", UserID: "u1"})
	}))
	defer ts.Close()

	creds, err := c.Login(context.Background(), "ada", "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.Token != "new-token" || creds.UserID != "u1" {
		t.Errorf("creds = %+v", creds)
	}
	if c.AuthToken() != "new-token" {
		t.Errorf("token not installed: %q", c.AuthToken())
	}
}

func TestLogin_RejectedDoesNotTearDown(t *testing.T) {
	var called atomic.Bool
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Incorrect username or password"}`))
	}))
	defer ts.Close()
	c.SetUnauthorizedHandler(func() { called.Store(true) })

	_, err := c.Login(context.Background(), "ada", "bad")
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if called.Load() {
		t.Error("unauthorized handler ran for an anonymous call")
	}
}

func TestUnauthorizedClearsToken(t *testing.T) {
	var calls atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()
	c.SetUnauthorizedHandler(func() { calls.Add(1) })

	_, err := c.GetUserRoles(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if c.AuthToken() != "" {
		t.Error("token kept after 401")
	}
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
}

func TestStaleUnauthorizedKeepsNewerToken(t *testing.T) {
	inFlight := make(chan struct{})
	release := make(chan struct{})
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok" {
			close(inFlight)
			<-release
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()
	var calls atomic.Int32
	c.SetUnauthorizedHandler(func() { calls.Add(1) })

	errc := make(chan error, 1)
	go func() {
		_, err := c.GetUserRoles(context.Background())
		errc <- err
	}()
	<-inFlight
	c.SetAuthToken("fresh")
	close(release)

	if err := <-errc; !IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if c.AuthToken() != "fresh" {
		t.Errorf("AuthToken() = %q, want fresh", c.AuthToken())
	}
	if calls.Load() != 0 {
		t.Errorf("handler calls = %d, want 0", calls.Load())
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		kind    ErrorKind
		detail  string
		message string
	}{
		{http.StatusUnprocessableEntity, `{"detail":[{"msg":"bad name"},{"msg":"too long"}]}`, KindValidation, "bad name; too long", "Could not rename: bad name; too long"},
		{http.StatusBadRequest, `{"detail":"already exists"}`, KindValidation, "already exists", "Could not rename: already exists"},
		{http.StatusForbidden, `{"detail":"nope"}`, KindForbidden, "nope", "Insufficient rights"},
		{http.StatusNotFound, ``, KindNotFound, "", "Does not exist or was already removed"},
		{http.StatusInternalServerError, `<html>oops</html>`, KindServer, "", "Server error, please try again later"},
		{http.StatusTeapot, `short and stout`, KindUnknown, "short and stout", "Could not rename"},
	}

	for _, tt := range tests {
		c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			io.WriteString(w, tt.body)
		}))

		err := c.UpdateImage(context.Background(), "img1", protocol.UpdateImageRequest{FileName: "x"})
		ts.Close()

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: err = %v, want *APIError", tt.status, err)
		}
		if apiErr.Kind != tt.kind || apiErr.Status != tt.status || apiErr.Detail != tt.detail {
			t.Errorf("status %d: got kind=%v detail=%q", tt.status, apiErr.Kind, apiErr.Detail)
		}
		if got := Message(err, "Could not rename"); got != tt.message {
			t.Errorf("status %d: Message = %q, want %q", tt.status, got, tt.message)
		}
	}
}

func TestNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := New(Config{BaseURL: url})
	_, err := c.ListCompanies(context.Background())
	if KindOf(err) != KindNetwork {
		t.Fatalf("kind = %v, want network (err %v)", KindOf(err), err)
	}
	if got := Message(err, "x"); got != "Cannot reach the server" {
		t.Errorf("Message = %q", got)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	c := New(Config{BaseURL: ts.URL, Timeout: 50 * time.Millisecond})
	_, err := c.ListImages(context.Background(), "c1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Timeout() {
		t.Fatalf("err = %v, want timeout", err)
	}
	if got := Message(err, "x"); got != "The server did not answer in time" {
		t.Errorf("Message = %q", got)
	}
}

func TestDirectoryCalls(t *testing.T) {
	var got []string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		got = append(got, r.Method+" "+r.URL.Path+" "+body["dir_name"]+" "+body["dir_path"])
		switch r.URL.Path {
		case "/s3_directory/get_objects_by_company_id":
			if r.URL.Query().Get("company_id") != "7" {
				t.Errorf("company_id = %q", r.URL.Query().Get("company_id"))
			}
			w.Write([]byte(`{"company_images/company_7/":0,"company_images/company_7/a.png":12}`))
		case "/s3_directory/create":
			w.Write([]byte(`{"Success":1}`))
		case "/s3_directory/rename":
			w.Write([]byte(`{"updated image id":["i1"]}`))
		case "/s3_directory/delete":
			w.Write([]byte(`{"deleted image id":["i1","i2"]}`))
		}
	}))
	defer ts.Close()
	ctx := context.Background()
	base := "company_images/company_7/"

	objs, err := c.ListObjects(ctx, "7")
	if err != nil || objs[base+"a.png"] != 12 {
		t.Fatalf("ListObjects = %v, %v", objs, err)
	}
	if err := c.CreateDirectory(ctx, protocol.CreateDirectoryRequest{CompanyID: "7", DirName: "drinks/", DirPath: base}); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	ren, err := c.RenameDirectory(ctx, protocol.RenameDirectoryRequest{CompanyID: "7", OldDirName: "drinks/", NewDirName: "bev/", DirPath: base})
	if err != nil || len(ren.UpdatedImageIDs) != 1 {
		t.Fatalf("RenameDirectory = %+v, %v", ren, err)
	}
	del, err := c.DeleteDirectory(ctx, protocol.DeleteDirectoryRequest{CompanyID: "7", DirName: "bev/", DirPath: base + "bev/"})
	if err != nil || len(del.DeletedImageIDs) != 2 {
		t.Fatalf("DeleteDirectory = %+v, %v", del, err)
	}

	want := []string{
		"GET /s3_directory/get_objects_by_company_id  ",
		"POST /s3_directory/create drinks/ " + base,
		"PATCH /s3_directory/rename  " + base,
		"DELETE /s3_directory/delete bev/ " + base + "bev/",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("requests:\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestUploadImage(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file part: %v", err)
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "latte.png" || string(data) != "PNGDATA" || hdr.Header.Get("Content-Type") != "image/png" {
			t.Errorf("file = %q %q %q", hdr.Filename, data, hdr.Header.Get("Content-Type"))
		}
		var meta protocol.UploadMetadata
		if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
			t.Fatalf("metadata: %v", err)
		}
		if meta.CompanyID != "7" || meta.FilePath != "company_images/company_7/drinks/" || meta.Width != "640" || meta.Height != "480" {
			t.Errorf("metadata = %+v", meta)
		}
		json.NewEncoder(w).Encode(protocol.ImageUploadResponse{ImageID: "img9"})
	}))
	defer ts.Close()

	resp, err := c.UploadImage(context.Background(), Upload{
		FileName:    "latte.png",
		ContentType: "image/png",
		Content:     strings.NewReader("PNGDATA"),
		Metadata: protocol.UploadMetadata{
			CompanyID: "7", FilePath: "company_images/company_7/drinks/", Width: "640", Height: "480",
		},
	})
	if err != nil || resp.ImageID != "img9" {
		t.Fatalf("UploadImage = %+v, %v", resp, err)
	}
}

func TestCallerSupersedes(t *testing.T) {
	var caller Caller
	started := make(chan struct{})

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- caller.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	<-started

	v, err := Call(context.Background(), &caller, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("second call = %d, %v", v, err)
	}
	if err := <-firstDone; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first call err = %v, want ErrSuperseded", err)
	}
	if Message(ErrSuperseded, "x") != "" {
		t.Error("superseded calls must not produce a message")
	}
}

func TestParseToken(t *testing.T) {
	exp := time.Now().Add(2 * time.Minute).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("whatever"))
	if err != nil {
		t.Fatal(err)
	}

	info, err := ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if info.Subject != "u1" || !info.ExpiresAt.Equal(exp) {
		t.Errorf("info = %+v", info)
	}
	if info.Expired() {
		t.Error("token should not be expired yet")
	}
	if !info.ExpiresWithin(5 * time.Minute) {
		t.Error("token expires within 5 minutes")
	}
	if _, err := ParseToken("opaque"); err == nil {
		t.Error("opaque token should not parse")
	}
}
