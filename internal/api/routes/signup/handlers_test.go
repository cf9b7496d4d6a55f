package signup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/naarscars/admission/internal/accounts"
	"github.com/naarscars/admission/internal/admission"
	apiError "github.com/naarscars/admission/internal/api/error"
	"github.com/naarscars/admission/internal/audit"
	"github.com/naarscars/admission/internal/config"
	"github.com/naarscars/admission/internal/env"
	"github.com/naarscars/admission/internal/invitecode"
	"github.com/naarscars/admission/internal/log"
	"github.com/naarscars/admission/internal/ratelimit"
)

const strongPassword = "Corr3ct!Horse#Battery"

type memDirectory struct {
	mu       sync.Mutex
	accounts map[string]accounts.Account
	nextID   int
}

func newMemDirectory() *memDirectory {
	return &memDirectory{accounts: make(map[string]accounts.Account)}
}

func (d *memDirectory) Create(ctx context.Context, acct accounts.NewAccount) (accounts.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.accounts {
		if a.Email == acct.Email {
			return accounts.Account{}, accounts.ErrEmailTaken
		}
	}
	d.nextID++
	a := accounts.Account{
		ID:           fmt.Sprintf("acct-%d", d.nextID),
		Email:        acct.Email,
		PasswordHash: acct.PasswordHash,
		FirstName:    acct.FirstName,
		LastName:     acct.LastName,
		CreatedAt:    time.Now().UTC(),
	}
	d.accounts[a.ID] = a
	return a, nil
}

func (d *memDirectory) Get(ctx context.Context, id string) (accounts.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[id]
	if !ok {
		return accounts.Account{}, accounts.ErrNotFound
	}
	return a, nil
}

func (d *memDirectory) GetByEmail(ctx context.Context, email string) (accounts.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return accounts.Account{}, accounts.ErrNotFound
}

func (d *memDirectory) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.accounts[id]; !ok {
		return accounts.ErrNotFound
	}
	delete(d.accounts, id)
	return nil
}

type memCounters struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *memCounters) Increment(ctx context.Context, actor string, action ratelimit.Action, windowStart time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	key := fmt.Sprintf("%s|%s|%d", actor, action, windowStart.Unix())
	c.counts[key]++
	return c.counts[key], nil
}

type fixture struct {
	env        *env.Env
	store      *invitecode.MemoryStore
	directory  *memDirectory
	controller *admission.Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := invitecode.NewMemoryStore()
	directory := newMemDirectory()
	secret := config.AppSecretValue("0123456789abcdef0123456789abcdef")
	controller := admission.NewController(admission.Config{
		Codes:     store,
		Generator: invitecode.NewGenerator(store),
		Limiter:   ratelimit.NewLimiter(&memCounters{}),
		Directory: directory,
		Sink:      audit.NewLogSink(log.NullLogger()),
		Log:       log.NullLogger(),
	})
	return &fixture{
		env: &env.Env{
			Logger:    log.NullLogger(),
			Admission: controller,
			Config: config.Config{
				AppSecret:  config.AppSecret{Value: &secret, Version: "1"},
				HostOrigin: "http://localhost:8080",
				Env:        config.EnvDev,
			},
		},
		store:      store,
		directory:  directory,
		controller: controller,
	}
}

// seedInvite creates a member and issues a code from them.
func (f *fixture) seedInvite(t *testing.T) (creator accounts.Account, code string) {
	t.Helper()
	creator, err := f.directory.Create(context.Background(), accounts.NewAccount{
		Email:        "creator@naarscars.example",
		PasswordHash: "hash",
		FirstName:    "Cee",
		LastName:     "Creator",
	})
	if err != nil {
		t.Fatalf("creating creator: %v", err)
	}
	ic, err := f.controller.Generate(context.Background(), creator.ID, "test")
	if err != nil {
		t.Fatalf("generating code: %v", err)
	}
	return creator, ic.Code
}

func (f *fixture) post(t *testing.T, body SignupRequest) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/signup", bytes.NewReader(raw))
	r.RemoteAddr = "203.0.113.7:40000"
	r = r.WithContext(env.WithCtx(r.Context(), f.env))
	w := httptest.NewRecorder()
	HandleSignup(w, r)
	return w
}

func TestSignupAdmitsNewMember(t *testing.T) {
	f := newFixture(t)
	_, code := f.seedInvite(t)

	w := f.post(t, SignupRequest{
		InviteCode: strings.ToLower(code), // case-insensitive input
		Email:      "new@naarscars.example",
		FirstName:  "New",
		LastName:   "Member",
		Password:   strongPassword,
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp SignupResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.UserID == "" {
		t.Fatal("response missing user_id")
	}

	// Session cookie is set for the new member.
	cookies := w.Result().Cookies()
	var found bool
	for _, c := range cookies {
		if c.Name == "access" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("access cookie not set")
	}

	// The code is now consumed by the new account.
	ic, err := f.store.Lookup(context.Background(), code)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	consumer, _, ok := ic.Consumption.Consumed()
	if !ok || consumer != resp.UserID {
		t.Errorf("consumer = %q, want %q", consumer, resp.UserID)
	}
}

func TestSignupUnknownCode(t *testing.T) {
	f := newFixture(t)

	w := f.post(t, SignupRequest{
		InviteCode: "NC23456789",
		Email:      "new@naarscars.example",
		FirstName:  "New",
		LastName:   "Member",
		Password:   strongPassword,
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp apiError.Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != apiError.InvalidInviteCode {
		t.Errorf("code = %q, want invalid_invite_code", resp.Code)
	}
}

func TestSignupSelfUseLooksLikeUnknownCode(t *testing.T) {
	f := newFixture(t)
	creator, code := f.seedInvite(t)

	selfUse := f.post(t, SignupRequest{
		InviteCode: code,
		Email:      creator.Email, // creator redeeming their own code
		FirstName:  "Cee",
		LastName:   "Creator",
		Password:   strongPassword,
	})
	unknown := f.post(t, SignupRequest{
		InviteCode: "NC23456789",
		Email:      "other@naarscars.example",
		FirstName:  "Oh",
		LastName:   "Ther",
		Password:   strongPassword,
	})

	if selfUse.Code != unknown.Code {
		t.Fatalf("status codes differ: self-use %d, unknown %d", selfUse.Code, unknown.Code)
	}
	if selfUse.Body.String() != unknown.Body.String() {
		t.Errorf("bodies differ:\nself-use: %s\nunknown:  %s", selfUse.Body.String(), unknown.Body.String())
	}

	// The code survives the self-use attempt.
	ic, err := f.store.Lookup(context.Background(), code)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ic.Consumption.IsConsumed() {
		t.Error("code consumed by self-use attempt")
	}
}

func TestSignupMalformedCode(t *testing.T) {
	f := newFixture(t)

	w := f.post(t, SignupRequest{
		InviteCode: "XX7X9K2ABQ", // wrong prefix
		Email:      "new@naarscars.example",
		FirstName:  "New",
		LastName:   "Member",
		Password:   strongPassword,
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	var resp apiError.Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != apiError.MalformedInviteCode {
		t.Errorf("code = %q, want malformed_invite_code", resp.Code)
	}
}

func TestSignupWeakPassword(t *testing.T) {
	f := newFixture(t)
	_, code := f.seedInvite(t)

	w := f.post(t, SignupRequest{
		InviteCode: code,
		Email:      "new@naarscars.example",
		FirstName:  "New",
		LastName:   "Member",
		Password:   "password",
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	var resp apiError.Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != apiError.WeakPassword {
		t.Errorf("code = %q, want weak_password", resp.Code)
	}

	// Weak passwords are rejected before any code handling.
	ic, err := f.store.Lookup(context.Background(), code)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ic.Consumption.IsConsumed() {
		t.Error("code consumed despite weak password")
	}
}

func TestSignupRateLimited(t *testing.T) {
	f := newFixture(t)

	var w *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		w = f.post(t, SignupRequest{
			InviteCode: "NC23456789",
			Email:      fmt.Sprintf("a%d@naarscars.example", i),
			FirstName:  "Aa",
			LastName:   "Bb",
			Password:   strongPassword,
		})
	}

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d after 6 attempts, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	var resp apiError.Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RetryAfterSeconds < 1 {
		t.Errorf("retry_after_seconds = %d, want >= 1", resp.RetryAfterSeconds)
	}
}

func TestSignupEmailConflict(t *testing.T) {
	f := newFixture(t)
	_, code := f.seedInvite(t)

	w := f.post(t, SignupRequest{
		InviteCode: code,
		Email:      "creator@naarscars.example", // taken by the creator
		FirstName:  "New",
		LastName:   "Member",
		Password:   strongPassword,
	})

	// The creator's email triggering the self-use check is expected here:
	// email match with the code's creator renders as an invalid code.
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}

	// A conflict with an unrelated existing account surfaces as such.
	if _, err := f.directory.Create(context.Background(), accounts.NewAccount{
		Email: "taken@naarscars.example", PasswordHash: "h", FirstName: "T", LastName: "K",
	}); err != nil {
		t.Fatal(err)
	}
	w = f.post(t, SignupRequest{
		InviteCode: code,
		Email:      "taken@naarscars.example",
		FirstName:  "New",
		LastName:   "Member",
		Password:   strongPassword,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestSignupBadBody(t *testing.T) {
	f := newFixture(t)

	r := httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader(`{"invite_code":`))
	r = r.WithContext(env.WithCtx(r.Context(), f.env))
	w := httptest.NewRecorder()
	HandleSignup(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
