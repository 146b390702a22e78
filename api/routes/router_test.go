package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/promo"
	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type memoryRedis struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
	err    error
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Ping(context.Context) error { return m.err }

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type stubAuthService struct {
	loginErr error
}

func (s stubAuthService) Register(ctx context.Context, req auth.RegisterRequest) (*auth.AuthResponse, error) {
	return &auth.AuthResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (s stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.AuthResponse, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &auth.AuthResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (stubAuthService) Logout(context.Context, string) error { return nil }

func (stubAuthService) Refresh(context.Context, string, string) (*auth.TokenPair, error) {
	return &auth.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (stubAuthService) SendOTP(context.Context, uuid.UUID) error { return nil }

func (stubAuthService) Activate(ctx context.Context, p auth.Principal, code string) (*auth.AuthResponse, error) {
	return &auth.AuthResponse{AccessToken: "activated"}, nil
}

func (stubAuthService) ActualPayload(ctx context.Context, userID uuid.UUID) (*users.UserPayload, error) {
	return &users.UserPayload{ID: userID}, nil
}

func (stubAuthService) SendRecovery(context.Context, string) error { return nil }

func (stubAuthService) AcceptRecovery(context.Context, string) (string, error) {
	return "http://client.test/account/changeforgotten/token?data=x", nil
}

func (stubAuthService) ResetPassword(context.Context, auth.Principal, auth.ResetPasswordRequest) (*auth.AuthResponse, error) {
	return &auth.AuthResponse{AccessToken: "reset", RefreshToken: "r3"}, nil
}

func (stubAuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, req auth.UpdateProfileRequest) (*users.UserPayload, error) {
	return &users.UserPayload{ID: userID}, nil
}

type stubProductService struct {
	lastQuery product.SearchQuery
}

func (s *stubProductService) Search(ctx context.Context, q product.SearchQuery) (*product.SearchResult, error) {
	s.lastQuery = q
	return &product.SearchResult{Products: []product.ProductDTO{}}, nil
}

func (s *stubProductService) GetProduct(ctx context.Context, id uuid.UUID) (*product.ProductDTO, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

type stubPromoService struct{}

func (stubPromoService) Issue(context.Context, promo.IssueInput) (*promo.IssuedCode, error) {
	return nil, nil
}

func (stubPromoService) Validate(ctx context.Context, code string) (*promo.Discount, error) {
	if code == "MISSING" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promo code not found")
	}
	return &promo.Discount{PercentDiscount: 15}, nil
}

func (stubPromoService) MarkUsed(context.Context, string) error                 { return nil }
func (stubPromoService) MarkUsedByHash(context.Context, *gorm.DB, string) error { return nil }
func (stubPromoService) Invite(context.Context, string) error                   { return nil }

func (stubPromoService) RedeemInvite(context.Context, string) (string, error) {
	return "http://client.test/subscribed", nil
}

func (stubPromoService) PurgeExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type stubCheckoutService struct {
	mu     sync.Mutex
	inputs []checkout.CheckoutInput
}

func (s *stubCheckoutService) Execute(ctx context.Context, input checkout.CheckoutInput) (*checkout.CheckoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, input)
	return &checkout.CheckoutResult{Message: "succeeded", OrderID: uuid.New()}, nil
}

func (s *stubCheckoutService) Resume(context.Context, *models.CheckoutSaga) error { return nil }

type stubOrdersService struct{}

func (stubOrdersService) List(context.Context, uuid.UUID, pagination.Params) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (stubOrdersService) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (stubOrdersService) TransitionByChargeID(context.Context, string, enums.OrderStatus) (*models.Order, error) {
	return nil, nil
}

type routerFixture struct {
	handler  http.Handler
	cfg      *config.Config
	redis    *memoryRedis
	products *stubProductService
	checkout *stubCheckoutService
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", ClientURL: "http://client.test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 20, RefreshTokenTTLMinutes: 60},
		RateLimit: config.RateLimitConfig{
			Enabled:              true,
			RecoveryWindow:       time.Minute,
			RecoveryLimit:        5,
			ResetPasswordWindow:  24 * time.Hour,
			ResetPasswordLimit:   3,
			NewsletterWindow:     5 * time.Second,
			NewsletterLimit:      1,
			PromoTestCodeWindow:  3 * time.Second,
			PromoTestCodeLimit:   1,
			IdempotencyTTL:       time.Hour,
			IdempotencyKeyHeader: "Idempotency-Key",
		},
	}
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		cfg:      testConfig(),
		redis:    newMemoryRedis(),
		products: &stubProductService{},
		checkout: &stubCheckoutService{},
	}
	reg := prometheus.NewRegistry()
	f.handler = NewRouter(Dependencies{
		Config:      f.cfg,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:          stubPinger{},
		Redis:       f.redis,
		Sessions:    stubSessions{},
		Auth:        stubAuthService{},
		Products:    f.products,
		Promo:       stubPromoService{},
		Checkout:    f.checkout,
		Orders:      stubOrdersService{},
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
	})
	return f
}

func (f *routerFixture) token(t *testing.T, activated bool) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(f.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:    uuid.New(),
		Email:     "ann@example.com",
		Activated: activated,
		JTI:       uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (f *routerFixture) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "10.0.0.1:4000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return payload.Error.Code
}

const paymentBody = `{"cart":{"products":{"v1":{"productRefId":"p1","sizes":{"42":{"quantity":1}}}},"deliveryType":"post"},` +
	`"paymentData":{"apiVersion":2,"paymentMethodData":{"type":"CARD","tokenizationData":{"type":"PAYMENT_GATEWAY","token":"{\"id\":\"tok_1\"}"}}}}`

func TestHealthEndpoints(t *testing.T) {
	f := newRouterFixture(t)

	if rec := f.do(http.MethodGet, "/health/live", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/health/ready", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", rec.Code)
	}

	f.redis.err = fmt.Errorf("connection refused")
	rec := f.do(http.MethodGet, "/health/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with redis down: expected 503 got %d", rec.Code)
	}
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	f := newRouterFixture(t)
	f.do(http.MethodGet, "/health/live", "", nil)

	rec := f.do(http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `http_requests_total{method="GET",route="/health/live",status="200"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", rec.Body.String())
	}
}

func TestLoginSetsTokenHeaderAndRefreshCookie(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/user/login", `{"email":"ann@example.com","password":"secret1"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Access-Token") != "access" {
		t.Fatalf("expected access token header")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "refreshToken" || !cookies[0].HttpOnly || cookies[0].Value != "refresh" {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
}

func TestRefreshReadsCookie(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/user/refresh", nil)
	req.Header.Set("Authorization", "Bearer expired-access")
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "refresh"})
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}

	missing := f.do(http.MethodPost, "/api/user/refresh", "", map[string]string{"Authorization": "Bearer x"})
	if missing.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without refresh token got %d", missing.Code)
	}
}

func TestAccountRoutesRequireAccessToken(t *testing.T) {
	f := newRouterFixture(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/user/send/otp"},
		{http.MethodGet, "/api/user/activate/123456"},
		{http.MethodGet, "/api/user/actual/payload"},
		{http.MethodPost, "/api/user/update/profile"},
		{http.MethodGet, "/api/order/list"},
	} {
		rec := f.do(route.method, route.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 got %d", route.method, route.path, rec.Code)
		}
	}

	rec := f.do(http.MethodGet, "/api/user/activate/123456", "", map[string]string{"Authorization": "Bearer " + f.token(t, false)})
	if rec.Code != http.StatusOK {
		t.Fatalf("inactive accounts may activate: expected 200 got %d", rec.Code)
	}
}

func TestAcceptRecoveryRedirects(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/api/user/accept/recovery?data=abc", "", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302 got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Location"), "http://client.test/account/changeforgotten/") {
		t.Fatalf("unexpected redirect %s", rec.Header().Get("Location"))
	}
	if rec := f.do(http.MethodGet, "/api/user/accept/recovery", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without data got %d", rec.Code)
	}
}

func TestSendRecoveryRateLimited(t *testing.T) {
	f := newRouterFixture(t)

	for i := 0; i < 6; i++ {
		rec := f.do(http.MethodPost, "/api/user/send/recovery", `{"email":"ann@example.com"}`, nil)
		if i < 5 && rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i, rec.Code)
		}
		if i == 5 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429 on sixth attempt got %d", rec.Code)
		}
	}
}

func TestPromoTestCode(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/promo/testcode", `{"code":"SPRING"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var payload struct {
		Data struct {
			PercentDiscount int `json:"percentDiscount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.PercentDiscount != 15 {
		t.Fatalf("expected 15 got %d", payload.Data.PercentDiscount)
	}

	again := f.do(http.MethodPost, "/api/promo/testcode", `{"code":"SPRING"}`, nil)
	if again.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 within the window got %d", again.Code)
	}

	f.redis.counts = map[string]int64{}
	missing := f.do(http.MethodPost, "/api/promo/testcode", `{"code":"MISSING"}`, nil)
	if missing.Code != http.StatusBadRequest || errorCode(t, missing) != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown code got %d %s", missing.Code, missing.Body.String())
	}
}

func TestPromoCreateCodeRedirects(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/api/promo/create/code?data=enc", "", nil)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "http://client.test/subscribed" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestProductSearchParsesQuery(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/api/products/search?q=red+runner&colors=red,blue&sizes=42&discount=true&minPrice=10&sortByPrice=ASC&skip=20&gender=Female", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	q := f.products.lastQuery
	if q.Q != "red runner" || len(q.Colors) != 2 || q.Sizes[0] != "42" || !q.Discount || q.Skip != 20 {
		t.Fatalf("unexpected query %+v", q)
	}
	if q.SortByPrice != "asc" || q.Gender != product.GenderFemale || q.MinPrice == nil || q.MaxPrice != nil {
		t.Fatalf("unexpected normalization %+v", q)
	}

	if rec := f.do(http.MethodGet, "/api/products/product?id=nope", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/products/product?id="+uuid.NewString(), "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestProcessPaymentRequiresActivatedAccount(t *testing.T) {
	f := newRouterFixture(t)

	if rec := f.do(http.MethodPost, "/api/order/process/payment", paymentBody, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/api/order/process/payment", paymentBody, map[string]string{"Authorization": "Bearer " + f.token(t, false)})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for inactive account got %d", rec.Code)
	}
	if len(f.checkout.inputs) != 0 {
		t.Fatalf("checkout should not run")
	}
}

func TestProcessPaymentPassesTokenAndReplaysIdempotentRequests(t *testing.T) {
	f := newRouterFixture(t)
	headers := map[string]string{
		"Authorization":   "Bearer " + f.token(t, true),
		"Idempotency-Key": "order-attempt-1",
	}

	first := f.do(http.MethodPost, "/api/order/process/payment", paymentBody, headers)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", first.Code, first.Body.String())
	}
	second := f.do(http.MethodPost, "/api/order/process/payment", paymentBody, headers)
	if second.Code != http.StatusOK || second.Body.String() != first.Body.String() {
		t.Fatalf("expected replayed response, got %d %s", second.Code, second.Body.String())
	}

	if len(f.checkout.inputs) != 1 {
		t.Fatalf("expected a single checkout execution, got %d", len(f.checkout.inputs))
	}
	input := f.checkout.inputs[0]
	if input.PaymentToken != `{"id":"tok_1"}` || input.IdempotencyKey != "order-attempt-1" {
		t.Fatalf("unexpected checkout input %+v", input)
	}
	if input.Cart.DeliveryType != enums.DeliveryTypePost || len(input.Cart.Products) != 1 {
		t.Fatalf("unexpected cart %+v", input.Cart)
	}
}

func TestOrderGetValidatesID(t *testing.T) {
	f := newRouterFixture(t)
	headers := map[string]string{"Authorization": "Bearer " + f.token(t, true)}

	if rec := f.do(http.MethodGet, "/api/order/not-a-uuid", "", headers); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/order/"+uuid.NewString(), "", headers); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/order/list?limit=10", "", headers); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
