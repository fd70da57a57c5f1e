package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"travel-concierge-go/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": UserID(c)})
	}
	r.GET("/x", handler)
	r.POST("/x", handler)
	r.OPTIONS("/x", handler)
	return r
}

func do(r http.Handler, method string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/x", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	m := token.NewJWTManager("secret", 1)
	r := newEngine(AuthMiddleware(m))

	if w := do(r, http.MethodGet, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: got %d", w.Code)
	}
	if w := do(r, http.MethodGet, map[string]string{"Authorization": "Token abc"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad scheme: got %d", w.Code)
	}

	wsTok, _ := m.GenerateWebsocketToken("u1")
	if w := do(r, http.MethodGet, map[string]string{"Authorization": "Bearer " + wsTok}); w.Code != http.StatusUnauthorized {
		t.Fatalf("websocket token accepted as access token: %d", w.Code)
	}

	tok, _ := m.GenerateToken("u1")
	w := do(r, http.MethodGet, map[string]string{"Authorization": "Bearer " + tok})
	if w.Code != http.StatusOK || w.Body.String() != `{"userId":"u1"}` {
		t.Fatalf("valid token: %d %s", w.Code, w.Body.String())
	}
}

func TestFunctionAuth(t *testing.T) {
	m := token.NewJWTManager("secret", 1)
	r := newEngine(FunctionAuth("fn-key", m))

	cases := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"apikey", map[string]string{"apikey": "fn-key"}, http.StatusOK},
		{"bearer function key", map[string]string{"Authorization": "Bearer fn-key"}, http.StatusOK},
		{"wrong key", map[string]string{"apikey": "nope"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		if w := do(r, http.MethodPost, tc.headers); w.Code != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, w.Code, tc.want)
		}
	}

	tok, _ := m.GenerateToken("u1")
	if w := do(r, http.MethodPost, map[string]string{"Authorization": "Bearer " + tok}); w.Code != http.StatusOK {
		t.Fatalf("user token: got %d", w.Code)
	}
	if w := do(r, http.MethodOptions, nil); w.Code != http.StatusOK {
		t.Fatalf("preflight must pass without credentials: got %d", w.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	r := newEngine(CORS())

	w := do(r, http.MethodOptions, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preflight status %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "authorization, x-client-info, apikey, content-type" {
		t.Fatalf("allow-headers %q", got)
	}

	w = do(r, http.MethodPost, nil)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("CORS headers missing on normal response")
	}
}

// countingReader 记录已被读取的字节数。
type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

func TestRequestLogger_DoesNotBufferWholeBody(t *testing.T) {
	payload := strings.Repeat("a", 64*1024)
	body := &countingReader{r: strings.NewReader(payload)}

	var readBeforeHandler int
	var got []byte
	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/x", func(c *gin.Context) {
		readBeforeHandler = body.read
		got, _ = io.ReadAll(c.Request.Body)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/x", body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if readBeforeHandler > maxLoggedBody+1 {
		t.Fatalf("logger read %d bytes before the handler", readBeforeHandler)
	}
	if string(got) != payload {
		t.Fatalf("handler got %d bytes, want %d", len(got), len(payload))
	}
}
