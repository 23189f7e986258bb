//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ieltswriter/ieltswriter/internal/ai"
	"github.com/ieltswriter/ieltswriter/internal/api"
	"github.com/ieltswriter/ieltswriter/internal/auth"
	"github.com/ieltswriter/ieltswriter/internal/cache"
	"github.com/ieltswriter/ieltswriter/internal/credentials"
	"github.com/ieltswriter/ieltswriter/internal/database"
	"github.com/ieltswriter/ieltswriter/internal/history"
	mw "github.com/ieltswriter/ieltswriter/internal/middleware"
	"github.com/ieltswriter/ieltswriter/internal/questionbank"
	"github.com/ieltswriter/ieltswriter/internal/quota"
	"github.com/ieltswriter/ieltswriter/internal/stats"
	"github.com/ieltswriter/ieltswriter/internal/users"
	"github.com/ieltswriter/ieltswriter/internal/writing"
)

const (
	dailyLimit = 3
	adminEmail = "admin@ieltswriter.test"
)

type TestEnv struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Server   *httptest.Server
	Gemini   *FakeGemini
	Stats    *stats.Service
	Governor *quota.Governor
}

var testEnv *TestEnv

// StartPostgres runs a migrated PostgreSQL container and returns its DSN.
func StartPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "ieltswriter_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	host, _ := pgContainer.Host(ctx)
	port, _ := pgContainer.MappedPort(ctx, "5432")
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/ieltswriter_test?sslmode=disable", host, port.Port())

	if err := database.RunMigrations(dsn, migrationsPath(t)); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return dsn
}

// StartRedis runs a Redis container and returns a connected client.
func StartRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	host, _ := redisContainer.Host(ctx)
	port, _ := redisContainer.MappedPort(ctx, "6379")

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { client.Close() })
	return client
}

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, StartPostgres(t))
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	redisClient := StartRedis(t)

	gemini := NewFakeGemini()
	t.Cleanup(gemini.Close)

	jwtManager := auth.NewJWTManager("test-access-secret-32-chars-long!!", "test-refresh-secret-32-chars-long!!", 15*time.Minute, 7*24*time.Hour)
	authSvc := auth.NewService(jwtManager, redisClient)
	userSvc := users.NewService(users.NewRepository(pool), adminEmail)

	enc, err := auth.NewEncryptor("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("creating encryptor: %v", err)
	}
	aes, err := credentials.NewAESCipher(enc)
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}
	credSvc := credentials.NewService(credentials.NewRepository(pool), aes, credentials.XORCipher{})

	governor := quota.NewGovernor(quota.NewPostgresStore(pool), credSvc, dailyLimit, time.UTC)
	proxyLimiter := quota.NewRateLimiter(redisClient, "ai-proxy", 100, time.Minute)
	grammarLimiter, _ := quota.NewFixedWindowLimiter(redisClient, "test:grammar", 100, time.Minute)
	evaluateLimiter, _ := quota.NewFixedWindowLimiter(redisClient, "test:evaluate", 100, time.Minute)

	transport := func(apiKey string) ai.Transport {
		return ai.NewGeminiTransport(apiKey, "gemini-2.0-flash", 10*time.Second, ai.WithBaseURL(gemini.URL()))
	}
	shared := transport("shared-key")
	notifier := ai.MultiNotifier{ai.LogNotifier{}, api.ContextNotifier{}}

	statsSvc := stats.NewService(stats.NewRepository(pool), userSvc, time.Minute, stats.DefaultRecentWindow)
	resultCache := cache.NewRedis(redisClient, 10, time.Hour)
	historySvc := history.NewService(history.NewRepository(pool), resultCache, history.StatsRecorder{Stats: statsSvc})
	bankSvc := questionbank.NewService(questionbank.NewRepository(pool))

	writingSvc := writing.NewService(writing.Deps{
		Router:          ai.NewRouter(credSvc, transport, ai.NewLimitedTransport(shared, proxyLimiter, "ai-proxy")),
		Client:          ai.NewClient(notifier),
		Governor:        governor,
		GrammarLimiter:  grammarLimiter,
		EvaluateLimiter: evaluateLimiter,
		History:         historySvc,
		Bank:            bankSvc,
		Notifier:        notifier,
	})

	authHandler := auth.NewHandler(authSvc, userSvc, func(ctx context.Context, userID uuid.UUID, sessionID string) {
		resultCache.ClearAll(ctx, userID.String(), sessionID)
		governor.Forget(userID)
	})
	credHandler := credentials.NewHandler(credSvc)
	writingHandler := writing.NewHandler(writingSvc)
	historyHandler := history.NewHandler(historySvc)
	statsHandler := stats.NewHandler(statsSvc, historySvc)
	bankHandler := questionbank.NewHandler(bankSvc)
	authLimit := mw.NewClientRateLimit(quota.NewRateLimiter(redisClient, "auth", 1000, time.Minute), time.Minute)

	router := api.NewRouter(api.RouterConfig{
		AuthRateLimiter: authLimit.Middleware,
		Readiness: []api.ReadinessCheck{
			{Name: "database", Check: func(ctx context.Context) error { return database.HealthCheck(ctx, pool) }},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
	}, api.HandlerSet{
		Register:      authHandler.Register,
		Login:         authHandler.Login,
		Refresh:       authHandler.Refresh,
		Logout:        authHandler.Logout,
		DeleteAccount: authHandler.DeleteAccount,

		GetCredential:    credHandler.Get,
		PutCredential:    credHandler.Put,
		DeleteCredential: credHandler.Delete,

		GetQuota: quota.NewHandler(governor).GetQuota,

		GenerateTask1: writingHandler.GenerateTask1,
		GenerateTask2: writingHandler.GenerateTask2,
		CheckGrammar:  writingHandler.Grammar,
		Evaluate:      writingHandler.Evaluate,

		ListHistory:   historyHandler.List,
		GetHistory:    historyHandler.Get,
		DeleteHistory: historyHandler.Delete,

		GetStats:         statsHandler.Get,
		RecalculateStats: statsHandler.Recalculate,

		AIProxy: ai.NewProxyHandler(shared, proxyLimiter).Complete,

		GlobalStats:     statsHandler.Rollup,
		ListQuestions:   bankHandler.List,
		ExportQuestions: bankHandler.Export,

		AuthMiddleware: auth.Middleware(authSvc),
		AdminOnly:      auth.RequireRole(string(users.RoleAdmin)),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	testEnv = &TestEnv{
		Pool:     pool,
		Redis:    redisClient,
		Server:   server,
		Gemini:   gemini,
		Stats:    statsSvc,
		Governor: governor,
	}
	return testEnv
}

func migrationsPath(t *testing.T) string {
	t.Helper()
	for _, p := range []string{"../../migrations", "../../../migrations"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	t.Fatal("migrations directory not found")
	return ""
}

// FakeGemini answers generateContent calls with canned JSON chosen from the
// instruction text. It counts calls per API key.
type FakeGemini struct {
	server *httptest.Server
	shared atomic.Int64
	own    atomic.Int64
	fail   atomic.Bool
}

func NewFakeGemini() *FakeGemini {
	g := &FakeGemini{}
	g.server = httptest.NewServer(http.HandlerFunc(g.serve))
	return g
}

func (g *FakeGemini) URL() string { return g.server.URL }

func (g *FakeGemini) Close() { g.server.Close() }

// Calls returns how many calls used the shared key and a user's own key.
func (g *FakeGemini) Calls() (shared, own int64) { return g.shared.Load(), g.own.Load() }

// FailNext makes the fake answer 503 until reset with false.
func (g *FakeGemini) FailNext(fail bool) { g.fail.Store(fail) }

const (
	reportJSON = `{"title":"Energy use","instruction":"The chart shows household energy use by source. Summarise the information by selecting and reporting the main features, and make comparisons where relevant.","chartType":"bar","xAxisKey":"source","dataKeys":["share"],"data":[{"source":"gas","share":40},{"source":"oil","share":20},{"source":"coal","share":15},{"source":"solar","share":15},{"source":"wind","share":10}]}`
	essayJSON    = `{"topic":"Remote work","question":"Some people think working from home benefits employees more than employers. To what extent do you agree? Give reasons for your answer and include any relevant examples from your own knowledge or experience."}`
	grammarJSON  = `[]`
	feedbackJSON = `{"band":6.5,"summary":"Clear position with some lapses.","strengths":["clear overview"],"improvements":["develop examples"]}`
)

func (g *FakeGemini) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("x-goog-api-key") == "shared-key" {
		g.shared.Add(1)
	} else {
		g.own.Add(1)
	}

	if g.fail.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
		return
	}

	body, _ := io.ReadAll(r.Body)
	text := string(body)

	var reply string
	switch {
	case strings.Contains(text, "Writing Task 1 question"):
		reply = reportJSON
	case strings.Contains(text, "Writing Task 2 question"):
		reply = essayJSON
	case strings.Contains(text, "grammar, spelling and punctuation"):
		reply = grammarJSON
	default:
		reply = feedbackJSON
	}

	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": reply}}}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Helper functions

func RegisterUser(t *testing.T, env *TestEnv, email, password string) string {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, http.MethodPost, "/api/v1/auth/register", body, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status %d", resp.StatusCode)
	}
	data := ParseResponse(t, resp)["data"].(map[string]any)
	return data["access_token"].(string)
}

// NewUser registers a unique user and returns its access token.
func NewUser(t *testing.T, env *TestEnv) string {
	t.Helper()
	return RegisterUser(t, env, "user-"+uuid.NewString()[:8]+"@example.com", "password123")
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}

// Data decodes the response envelope and returns its data object.
func Data(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	data, ok := ParseResponse(t, resp)["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object")
	}
	return data
}
