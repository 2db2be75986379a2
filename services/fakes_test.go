package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/repositories"
	"github.com/croftbase/member-console/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor receives from ch or fails the test after a grace period. Side
// effects run on goroutines, so tests observe them through channels.
func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

type fakeUserRepo struct {
	mu         sync.Mutex
	nextID     int
	users      map[int]*models.User
	lastFilter models.UserFilter

	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]*models.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repositories.ErrUserEmailConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[user.ID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	for id, other := range r.users {
		if id != user.ID && strings.EqualFold(other.Email, user.Email) {
			return repositories.ErrUserEmailConflict
		}
	}
	u.Name = user.Name
	u.Email = user.Email
	u.Bio = user.Bio
	u.Locale = user.Locale
	u.UpdatedAt = time.Now()
	user.UpdatedAt = u.UpdatedAt
	return nil
}

func (r *fakeUserRepo) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	hash := passwordHash
	u.PasswordHash = &hash
	return nil
}

func (r *fakeUserRepo) UpdateImage(ctx context.Context, id int, key *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.Image = key
	return nil
}

func (r *fakeUserRepo) UpdateRole(ctx context.Context, id int, role models.UserRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (r *fakeUserRepo) SetEmailVerified(ctx context.Context, id int, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.EmailVerified = verified
	return nil
}

func (r *fakeUserRepo) SetBanned(ctx context.Context, id int, banned bool, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.Banned = banned
	u.BanReason = reason
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repositories.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter
	ids := make([]int, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, *r.users[id])
	}
	return users, len(users), nil
}

func (r *fakeUserRepo) Counts(ctx context.Context, signupsSince time.Time) (*models.UserCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := &models.UserCounts{}
	for _, u := range r.users {
		counts.Total++
		if u.Banned {
			counts.Banned++
		}
		if u.EmailVerified {
			counts.Verified++
		}
		if u.CreatedAt.After(signupsSince) {
			counts.CreatedSince++
		}
	}
	return counts, nil
}

type fakeVerificationRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Verification
}

func newFakeVerificationRepo() *fakeVerificationRepo {
	return &fakeVerificationRepo{rows: make(map[string]*models.Verification)}
}

func (r *fakeVerificationRepo) Create(ctx context.Context, verification *models.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TokenHash == verification.TokenHash {
			return repositories.ErrVerificationTokenConflict
		}
	}
	if verification.CreatedAt.IsZero() {
		verification.CreatedAt = time.Now()
	}
	clone := *verification
	r.rows[verification.ID] = &clone
	return nil
}

func (r *fakeVerificationRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TokenHash == tokenHash {
			clone := *row
			return &clone, nil
		}
	}
	return nil, repositories.ErrVerificationNotFound
}

func (r *fakeVerificationRepo) ConsumeByTokenHash(ctx context.Context, tokenHash string) (*models.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.TokenHash == tokenHash {
			delete(r.rows, id)
			return row, nil
		}
	}
	return nil, repositories.ErrVerificationNotFound
}

func (r *fakeVerificationRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repositories.ErrVerificationNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *fakeVerificationRepo) DeleteByIdentifier(ctx context.Context, identifier string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, row := range r.rows {
		if row.Identifier == identifier {
			delete(r.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeVerificationRepo) ListByIdentifierPrefix(ctx context.Context, prefix string) ([]*models.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []*models.Verification
	for _, row := range r.rows {
		if strings.HasPrefix(row.Identifier, prefix) {
			clone := *row
			rows = append(rows, &clone)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

func (r *fakeVerificationRepo) CountActiveByIdentifierPrefix(ctx context.Context, prefix string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	count := 0
	for _, row := range r.rows {
		if strings.HasPrefix(row.Identifier, prefix) && !row.Expired(now) {
			count++
		}
	}
	return count, nil
}

func (r *fakeVerificationRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var deleted int64
	for id, row := range r.rows {
		if row.Expired(now) {
			delete(r.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeVerificationRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// expireAll backdates every stored token so expiry paths can be exercised
// without sleeping.
func (r *fakeVerificationRepo) expireAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		row.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*models.Session)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	clone := *session
	r.sessions[session.ID] = &clone
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repositories.ErrSessionNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return repositories.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) DeleteByUserID(ctx context.Context, userID int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeSessionRepo) DeleteByUserIDExcept(ctx context.Context, userID int, keepID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, s := range r.sessions {
		if s.UserID == userID && id != keepID {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeSessionRepo) ListByUserID(ctx context.Context, userID int) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sessions []models.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			sessions = append(sessions, *s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
	return sessions, nil
}

func (r *fakeSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var deleted int64
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeSessionRepo) CountActive(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	count := 0
	for _, s := range r.sessions {
		if !s.Expired(now) {
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *fakeSessionRepo) expireAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

type fakePreferenceRepo struct {
	mu       sync.Mutex
	rows     map[int]*models.Preferences
	upserted chan models.Preferences
}

func newFakePreferenceRepo() *fakePreferenceRepo {
	return &fakePreferenceRepo{
		rows:     make(map[int]*models.Preferences),
		upserted: make(chan models.Preferences, 8),
	}
}

func (r *fakePreferenceRepo) GetByUserID(ctx context.Context, userID int) (*models.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[userID]
	if !ok {
		return nil, repositories.ErrPreferencesNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakePreferenceRepo) Upsert(ctx context.Context, prefs *models.Preferences) error {
	r.mu.Lock()
	prefs.UpdatedAt = time.Now()
	clone := *prefs
	r.rows[prefs.UserID] = &clone
	r.mu.Unlock()
	select {
	case r.upserted <- clone:
	default:
	}
	return nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	nextID   int
	accounts []*models.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{}
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Provider == account.Provider && a.ProviderAccountID == account.ProviderAccountID {
			return repositories.ErrAccountConflict
		}
	}
	r.nextID++
	account.ID = r.nextID
	account.CreatedAt = time.Now()
	clone := *account
	r.accounts = append(r.accounts, &clone)
	return nil
}

func (r *fakeAccountRepo) GetByProvider(ctx context.Context, provider, providerAccountID string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Provider == provider && a.ProviderAccountID == providerAccountID {
			clone := *a
			return &clone, nil
		}
	}
	return nil, repositories.ErrAccountNotFound
}

func (r *fakeAccountRepo) ListByUserID(ctx context.Context, userID int) ([]models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var accounts []models.Account
	for _, a := range r.accounts {
		if a.UserID == userID {
			accounts = append(accounts, *a)
		}
	}
	return accounts, nil
}

type fakeFlagRepo struct {
	mu     sync.Mutex
	nextID int
	flags  map[int]*models.FeatureFlag
}

func newFakeFlagRepo() *fakeFlagRepo {
	return &fakeFlagRepo{flags: make(map[int]*models.FeatureFlag)}
}

func (r *fakeFlagRepo) Create(ctx context.Context, flag *models.FeatureFlag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.flags {
		if f.Name == flag.Name {
			return repositories.ErrFlagNameConflict
		}
	}
	r.nextID++
	flag.ID = r.nextID
	now := time.Now()
	flag.CreatedAt = now
	flag.UpdatedAt = now
	clone := *flag
	r.flags[flag.ID] = &clone
	return nil
}

func (r *fakeFlagRepo) GetByID(ctx context.Context, id int) (*models.FeatureFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flags[id]
	if !ok {
		return nil, repositories.ErrFlagNotFound
	}
	clone := *f
	return &clone, nil
}

func (r *fakeFlagRepo) GetByName(ctx context.Context, name string) (*models.FeatureFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.flags {
		if f.Name == name {
			clone := *f
			return &clone, nil
		}
	}
	return nil, repositories.ErrFlagNotFound
}

func (r *fakeFlagRepo) List(ctx context.Context) ([]models.FeatureFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0, len(r.flags))
	for id := range r.flags {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	flags := make([]models.FeatureFlag, 0, len(ids))
	for _, id := range ids {
		flags = append(flags, *r.flags[id])
	}
	return flags, nil
}

func (r *fakeFlagRepo) Update(ctx context.Context, flag *models.FeatureFlag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flags[flag.ID]
	if !ok {
		return repositories.ErrFlagNotFound
	}
	for id, other := range r.flags {
		if id != flag.ID && other.Name == flag.Name {
			return repositories.ErrFlagNameConflict
		}
	}
	f.Name = flag.Name
	f.Description = flag.Description
	f.Metadata = flag.Metadata
	f.UpdatedAt = time.Now()
	flag.UpdatedAt = f.UpdatedAt
	return nil
}

func (r *fakeFlagRepo) SetEnabled(ctx context.Context, id int, enabled bool) (*models.FeatureFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flags[id]
	if !ok {
		return nil, repositories.ErrFlagNotFound
	}
	f.Enabled = enabled
	f.UpdatedAt = time.Now()
	clone := *f
	return &clone, nil
}

func (r *fakeFlagRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flags[id]; !ok {
		return repositories.ErrFlagNotFound
	}
	delete(r.flags, id)
	return nil
}

func (r *fakeFlagRepo) Counts(ctx context.Context) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := len(r.flags)
	enabled := 0
	for _, f := range r.flags {
		if f.Enabled {
			enabled++
		}
	}
	return total, enabled, nil
}

type invitationMail struct {
	to      string
	inviter string
	role    models.UserRole
	token   string
}

type tokenMail struct {
	to    string
	token string
}

type fakeMailer struct {
	welcome     chan string
	verify      chan tokenMail
	invitations chan invitationMail
	resets      chan tokenMail
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{
		welcome:     make(chan string, 8),
		verify:      make(chan tokenMail, 8),
		invitations: make(chan invitationMail, 8),
		resets:      make(chan tokenMail, 8),
	}
}

func (m *fakeMailer) SendWelcomeEmail(to, name string) error {
	m.welcome <- to
	return nil
}

func (m *fakeMailer) SendVerificationEmail(to, name, token string) error {
	m.verify <- tokenMail{to: to, token: token}
	return nil
}

func (m *fakeMailer) SendInvitationEmail(to, inviterName string, role models.UserRole, token string) error {
	m.invitations <- invitationMail{to: to, inviter: inviterName, role: role, token: token}
	return nil
}

func (m *fakeMailer) SendPasswordResetEmail(to, token string) error {
	m.resets <- tokenMail{to: to, token: token}
	return nil
}

type recordedEvent struct {
	eventType string
	payload   interface{}
}

type recordPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordPublisher) Publish(eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{eventType: eventType, payload: payload})
}

func (p *recordPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.eventType)
	}
	return types
}

func (p *recordPublisher) has(eventType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.eventType == eventType {
			return true
		}
	}
	return false
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted chan string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{
		objects: make(map[string][]byte),
		deleted: make(chan string, 8),
	}
}

func (u *fakeUploader) Upload(ctx context.Context, key, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.objects[key] = data
	u.mu.Unlock()
	return &storage.UploadResult{Key: key, Location: u.PublicURL(key), ETag: "fake-etag"}, nil
}

func (u *fakeUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	delete(u.objects, key)
	u.mu.Unlock()
	select {
	case u.deleted <- key:
	default:
	}
	return nil
}

func (u *fakeUploader) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (u *fakeUploader) stored(key string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.objects[key]
	return ok
}

// fakeSessions is a SessionService stand-in for tests that assert what the
// caller passes to Issue. Tests that need real token behavior build a real
// session service on fake repos instead.
type fakeSessions struct {
	issueFn func(ctx context.Context, user *models.User, ip, userAgent string) (string, *models.Session, error)
}

func (f *fakeSessions) Issue(ctx context.Context, user *models.User, ip, userAgent string) (string, *models.Session, error) {
	if f.issueFn != nil {
		return f.issueFn(ctx, user, ip, userAgent)
	}
	return "session-token", &models.Session{ID: "session-id", UserID: user.ID}, nil
}

func (f *fakeSessions) Authenticate(ctx context.Context, token string) (*models.User, *models.Session, error) {
	return nil, nil, ErrSessionInvalid
}

func (f *fakeSessions) Revoke(ctx context.Context, sessionID string) error { return nil }

func (f *fakeSessions) RevokeAllForUser(ctx context.Context, userID int) (int64, error) {
	return 0, nil
}

func (f *fakeSessions) RevokeOthers(ctx context.Context, userID int, keepSessionID string) (int64, error) {
	return 0, nil
}

func (f *fakeSessions) ListForUser(ctx context.Context, userID int) ([]models.Session, error) {
	return nil, nil
}
