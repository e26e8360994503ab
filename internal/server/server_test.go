package server_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaangola/apiserver/config"
	"github.com/novaangola/apiserver/internal/auth"
	"github.com/novaangola/apiserver/internal/db"
	"github.com/novaangola/apiserver/internal/handlers"
	"github.com/novaangola/apiserver/internal/logger"
	"github.com/novaangola/apiserver/internal/metrics"
	"github.com/novaangola/apiserver/internal/server"
	"github.com/novaangola/apiserver/internal/services"
	"github.com/novaangola/apiserver/internal/storage"
	"github.com/novaangola/apiserver/internal/store"
	"github.com/novaangola/apiserver/types"
)

const testSecret = "test-secret"

type testEnv struct {
	router http.Handler
	conn   *sql.DB
	tokens *auth.Tokens
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := config.Config{Database: config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "nova_angola.db"),
	}}
	require.NoError(t, db.MigrateUp(cfg))
	conn, err := db.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	disk, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	m := metrics.New()
	log := logger.Discard()
	opts := []services.Option{services.WithLogger(log), services.WithMetrics(m)}
	users := store.NewUserRepository(conn)
	areas := store.NewRiskAreaRepository(conn)
	tokens := auth.NewTokens(testSecret)

	router := server.NewRouter(server.Deps{
		Logger:        log,
		Metrics:       m,
		Tokens:        tokens,
		Users:         services.NewUserService(users, opts...),
		RiskAreas:     services.NewRiskAreaService(areas, opts...),
		Confirmations: services.NewConfirmationService(areas, users, store.NewConfirmationRepository(conn), opts...),
		Evidence:      services.NewEvidenceService(storage.NewStorage(disk), opts...),
		HealthChecks:  map[string]handlers.Pinger{"database": conn},
	})

	return &testEnv{router: router, conn: conn, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// signup registers and logs in a user, returning its id and token.
func (e *testEnv) signup(t *testing.T, telefone, nif string) (string, string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/cadastro", map[string]any{
		"nome": "Ana", "email": nif, "telefone": telefone, "password": "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/login", map[string]any{"telefone": telefone, "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	return body["id"].(string), body["token"].(string)
}

func (e *testEnv) postArea(t *testing.T, body any, token string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/postar_aria", body, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "Ocorrência registada.", out["message"])
	return out["id"].(string)
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Nova Angola Backend", body["app"])
	assert.Equal(t, "1.0.0", body["version"])
	assert.Len(t, body["endpoints"], 7)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/nao-existe", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Rota não encontrada.", decode(t, rec)["message"])
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"database":"ok"}}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nova_angola_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/postar_aria", nil)
	req.Header.Set("Origin", "http://localhost:8081")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/cadastro", map[string]any{
		"nome": " Ana ", "email": "NIF1", "telefone": "900000001", "password": "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)
	assert.Equal(t, "Conta criada com sucesso.", created["message"])
	assert.NotEmpty(t, created["id"])

	rec = env.do(t, http.MethodPost, "/login", map[string]any{"telefone": "900000001", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode(t, rec)
	assert.Equal(t, created["id"], login["id"])
	assert.Equal(t, "Ana", login["nome"])

	identity, err := env.tokens.Verify(login["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, created["id"], identity.ID)
	assert.Equal(t, "900000001", identity.Telefone)
}

func TestSignupConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "900000001", "NIF1")

	for _, body := range []map[string]any{
		{"nome": "B", "email": "NIF2", "telefone": "900000001", "password": "x"},
		{"nome": "B", "email": "NIF1", "telefone": "900000002", "password": "x"},
	} {
		rec := env.do(t, http.MethodPost, "/cadastro", body, "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "Já existe uma conta com este NIF ou telefone.", decode(t, rec)["message"])
	}
}

func TestSignupMissingFields(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []any{
		map[string]any{"nome": "Ana", "email": "NIF1", "telefone": "900000001"},
		map[string]any{"nome": "   ", "email": "NIF1", "telefone": "900000001", "password": "x"},
		"",
		"{not json",
	} {
		rec := env.do(t, http.MethodPost, "/cadastro", body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Todos os campos são obrigatórios.", decode(t, rec)["message"])
	}
}

func TestSignupRejectsLongPassword(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/cadastro", map[string]any{
		"nome": "Ana", "email": "NIF9", "telefone": "900000009", "password": strings.Repeat("a", 80),
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "A password não pode ter mais de 72 bytes.", decode(t, rec)["message"])

	rec = env.do(t, http.MethodPost, "/login", map[string]any{"telefone": "900000009", "password": strings.Repeat("a", 80)}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "900000001", "NIF1")

	rec := env.do(t, http.MethodPost, "/login", map[string]any{"telefone": "900000001"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Telefone e password são obrigatórios.", decode(t, rec)["message"])

	wrong := env.do(t, http.MethodPost, "/login", map[string]any{"telefone": "900000001", "password": "nope"}, "")
	unknown := env.do(t, http.MethodPost, "/login", map[string]any{"telefone": "999", "password": "secret1"}, "")
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, "Credenciais inválidas.", decode(t, wrong)["message"])
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestLoginAcceptsNumericPhone(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "900000001", "NIF1")

	rec := env.do(t, http.MethodPost, "/login", `{"telefone":900000001,"password":"secret1"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPostAndListRiskAreas(t *testing.T) {
	env := newTestEnv(t)

	first := env.postArea(t, map[string]any{
		"chuva":             "SIM",
		"temperatura":       "",
		"enderecoFormatado": "Rua 1, Luanda",
		"lat":               "-8.8383",
		"log":               13.2344,
		"categoria":         "Segurança",
		"respostas":         map[string]any{"q1": "sim"},
		"analise":           map[string]any{"nivel": 3},
	}, "")
	time.Sleep(2 * time.Millisecond)
	second := env.postArea(t, map[string]any{"lat": 0, "categoria": "mapa"}, "")

	rec := env.do(t, http.MethodGet, "/buscar_aria_de_risco", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)

	assert.Equal(t, second, list[0]["id"])
	assert.Equal(t, "0", list[0]["latitude"])
	assert.Equal(t, "0", list[0]["longitude"])
	assert.Nil(t, list[0]["categoria"])
	assert.Nil(t, list[0]["chuva"])

	assert.Equal(t, first, list[1]["id"])
	assert.Equal(t, "-8.8383", list[1]["latitude"])
	assert.Equal(t, "13.2344", list[1]["longitude"])
	assert.Equal(t, "SIM", list[1]["chuva"])
	assert.Nil(t, list[1]["temperatura"])
	assert.Equal(t, "seguranca", list[1]["categoria"])
	assert.Equal(t, "Rua 1, Luanda", list[1]["enderecoFormatado"])
	assert.NotEmpty(t, list[1]["createdAt"])
	assert.NotContains(t, list[1], "respostas")

	stored, err := store.NewRiskAreaRepository(env.conn).Get(context.Background(), first)
	require.NoError(t, err)
	assert.JSONEq(t, `{"q1":"sim"}`, string(stored.Respostas))
	assert.JSONEq(t, `{"nivel":3}`, string(stored.Classificacao))
	assert.Nil(t, stored.UserID)
}

func TestListEmpty(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/buscar_aria_de_risco", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPostRiskAreaAttributesCreator(t *testing.T) {
	env := newTestEnv(t)
	userID, token := env.signup(t, "900000001", "NIF1")
	repo := store.NewRiskAreaRepository(env.conn)

	id := env.postArea(t, map[string]any{"chuva": "SIM"}, token)
	stored, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, userID, *stored.UserID)

	id = env.postArea(t, map[string]any{"chuva": "SIM"}, "garbage")
	stored, err = repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, stored.UserID, "an invalid token posts anonymously")
}

func TestPostRiskAreaRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/postar_aria", "{broken", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)
	area := env.postArea(t, map[string]any{}, "")

	rec := env.do(t, http.MethodPost, "/analisar_aria", map[string]any{"ariaDeRisco": area}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Precisa estar autenticado para confirmar.", decode(t, rec)["message"])

	rec = env.do(t, http.MethodPost, "/analisar_aria", map[string]any{}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "authentication is checked before the body")

	expired, err := auth.NewTokens(testSecret, auth.WithClock(func() time.Time {
		return time.Now().Add(-8 * 24 * time.Hour)
	})).Issue(types.User{ID: "user-1", Telefone: "900000001", Nome: "Ana"})
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/analisar_aria", map[string]any{"ariaDeRisco": area}, expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := auth.NewTokens("other-secret").Issue(types.User{ID: "user-1"})
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/analisar_aria", map[string]any{"ariaDeRisco": area}, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConfirmLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup(t, "900000001", "NIF1")
	_, otherToken := env.signup(t, "900000002", "NIF2")
	area := env.postArea(t, map[string]any{"chuva": "SIM"}, "")

	rec := env.do(t, http.MethodPost, "/analisar_aria", map[string]any{}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ID da área de risco é obrigatório.", decode(t, rec)["message"])

	rec = env.do(t, http.MethodPost, "/analisar_aria", map[string]any{"ariaDeRisco": "missing"}, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Área de risco não encontrada.", decode(t, rec)["message"])

	rec = env.do(t, http.MethodPost, "/analisar_aria", map[string]any{"ariaDeRisco": area}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Confirmação registada com sucesso.", decode(t, rec)["message"])

	rec = env.do(t, http.MethodPost, "/analisar_aria", map[string]any{"ariaDeRisco": area}, token)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Você já confirmou esta ocorrência recentemente.", decode(t, rec)["message"])

	rec = env.do(t, http.MethodPost, "/analisar_aria", map[string]any{"ariaDeRisco": area}, otherToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/buscar_analise_total?ariaDeRisco="+area, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"confirmationCount":2,"severity":"low"}`, rec.Body.String())
}

func TestConfirmFromDeletedAccount(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup(t, "900000001", "NIF1")
	areaID := env.postArea(t, map[string]any{"chuva": "SIM"}, "")

	_, err := env.conn.Exec(`DELETE FROM users`)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/analisar_aria", map[string]any{"ariaDeRisco": areaID}, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Precisa estar autenticado para confirmar.", decode(t, rec)["message"])
}

func TestCountLenientReads(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/buscar_analise_total", "/buscar_analise_total?ariaDeRisco=unknown"} {
		rec := env.do(t, http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"confirmationCount":0,"severity":"none"}`, rec.Body.String())
	}
}

func TestConcurrentConfirmations(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup(t, "900000001", "NIF1")
	area := env.postArea(t, map[string]any{}, "")

	const requests = 20
	codes := make([]int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = env.do(t, http.MethodPost, "/analisar_aria", map[string]any{"ariaDeRisco": area}, token).Code
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, requests-1, conflict)

	rec := env.do(t, http.MethodGet, "/buscar_analise_total?ariaDeRisco="+area, nil, "")
	assert.JSONEq(t, `{"confirmationCount":1,"severity":"low"}`, rec.Body.String())
}

func multipartFile(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestUploadAndDownload(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte("\x89PNG\r\n\x1a\nfake")

	body, contentType := multipartFile(t, "file", "foto.PNG", "image/png", payload)
	rec := env.upload(t, body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	fileID := out["fileId"].(string)
	assert.True(t, strings.HasSuffix(fileID, ".png"))
	assert.Equal(t, "http://example.com/uploads/"+fileID, out["link"])
	assert.Equal(t, out["link"], out["url"])

	rec = env.do(t, http.MethodGet, "/uploads/"+fileID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, payload, rec.Body.Bytes())
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartFile(t, "file", "doc.pdf", "application/pdf", []byte("%PDF"))
	rec := env.upload(t, body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Nenhum ficheiro enviado.", decode(t, rec)["message"])

	body, contentType = multipartFile(t, "outro", "foto.png", "image/png", []byte("png"))
	rec = env.upload(t, body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Nenhum ficheiro enviado.", decode(t, rec)["message"])

	rec = env.upload(t, strings.NewReader("plain"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big := bytes.Repeat([]byte{0}, services.MaxEvidenceSize+1)
	body, contentType = multipartFile(t, "file", "big.png", "image/png", big)
	rec = env.upload(t, body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Ficheiro excede o limite de 20 MB.", decode(t, rec)["message"])
}

func TestDownloadMissing(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/uploads/missing.png", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
