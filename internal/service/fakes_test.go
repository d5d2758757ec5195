package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/provider"
	"ServerMonitorAPI/internal/queue"

	"github.com/lib/pq"
)

// memAlertRepo is an in-memory IAlertRepository. When enforceUnique is set
// it rejects a second ACTIVE alert per (server, type) the way the partial
// unique index does.
type memAlertRepo struct {
	mu            sync.Mutex
	alerts        map[int64]*models.Alert
	nextID        int64
	enforceUnique bool

	// beforeCreate runs inside Create, before the uniqueness check
	beforeCreate func(r *memAlertRepo)
}

func newMemAlertRepo() *memAlertRepo {
	return &memAlertRepo{alerts: make(map[int64]*models.Alert)}
}

func (r *memAlertRepo) insertLocked(a *models.Alert) {
	r.nextID++
	a.ID = r.nextID
	cp := *a
	r.alerts[a.ID] = &cp
}

func (r *memAlertRepo) activeLocked(serverID string, kind models.AlertKind) *models.Alert {
	for _, a := range r.alerts {
		if a.ServerID == serverID && a.Type == kind && a.Status == models.StatusActive {
			return a
		}
	}
	return nil
}

func (r *memAlertRepo) Create(ctx context.Context, a *models.Alert) error {
	if r.beforeCreate != nil {
		hook := r.beforeCreate
		r.beforeCreate = nil
		hook(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enforceUnique && r.activeLocked(a.ServerID, a.Type) != nil {
		return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
	}
	r.insertLocked(a)
	return nil
}

func (r *memAlertRepo) GetByID(ctx context.Context, id int64) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memAlertRepo) FindActive(ctx context.Context, serverID string, kind models.AlertKind) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.activeLocked(serverID, kind)
	if a == nil {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memAlertRepo) GetActive(ctx context.Context, limit, offset int) ([]models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Alert
	for _, a := range r.alerts {
		if a.Status == models.StatusActive {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memAlertRepo) UpdateCurrentValue(ctx context.Context, id int64, value float64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.CurrentValue = value
	a.Message = message
	return nil
}

func (r *memAlertRepo) UpdateStatus(ctx context.Context, id int64, status models.AlertStatus, resolvedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return sql.ErrNoRows
	}
	if r.enforceUnique && status == models.StatusActive {
		if other := r.activeLocked(a.ServerID, a.Type); other != nil && other.ID != id {
			return &pq.Error{Code: "23505"}
		}
	}
	a.Status = status
	a.ResolvedAt = resolvedAt
	return nil
}

func (r *memAlertRepo) GetStatistics(ctx context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{}
	for _, a := range r.alerts {
		if a.Status == models.StatusActive {
			stats[string(a.Severity)]++
		}
	}
	return stats, nil
}

func (r *memAlertRepo) countActive(serverID string, kind models.AlertKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.alerts {
		if a.ServerID == serverID && a.Type == kind && a.Status == models.StatusActive {
			n++
		}
	}
	return n
}

type memRuleRepo struct {
	rules []models.AlertRule
	err   error
}

func (r *memRuleRepo) GetEnabled(ctx context.Context) ([]models.AlertRule, error) {
	return r.rules, r.err
}

type memMetricRepo struct {
	mu        sync.Mutex
	metrics   []models.Metric
	failType  models.MetricType
	lastSince time.Time
}

func (r *memMetricRepo) Insert(ctx context.Context, m *models.Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = int64(len(r.metrics) + 1)
	r.metrics = append(r.metrics, *m)
	return nil
}

func (r *memMetricRepo) InsertBatch(ctx context.Context, metrics []models.Metric) error {
	for i := range metrics {
		if err := r.Insert(ctx, &metrics[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *memMetricRepo) GetByTypeSince(ctx context.Context, t models.MetricType, since time.Time) ([]models.Metric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSince = since
	if t == r.failType {
		return nil, errors.New("metric store unavailable")
	}
	var out []models.Metric
	for _, m := range r.metrics {
		if m.Type == t && !m.Timestamp.Before(since) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

type memSubscriptionRepo struct {
	subs []models.Subscription
}

// FindMatching returns every stored subscription; the matcher filters.
func (r *memSubscriptionRepo) FindMatching(ctx context.Context, serverID string, kind models.AlertKind) ([]models.Subscription, error) {
	return r.subs, nil
}

type memNotificationRepo struct {
	mu            sync.Mutex
	notifications map[int64]*models.Notification
	logs          []models.NotificationLog
	templates     map[int64]*models.NotificationTemplate
	nextID        int64
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{
		notifications: make(map[int64]*models.Notification),
		templates:     make(map[int64]*models.NotificationTemplate),
	}
}

func (r *memNotificationRepo) put(n models.Notification) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	n.ID = r.nextID
	r.notifications[n.ID] = &n
	return n.ID
}

func (r *memNotificationRepo) get(id int64) models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.notifications[id]
}

func (r *memNotificationRepo) all() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notification, 0, len(r.notifications))
	for _, n := range r.notifications {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memNotificationRepo) events(id int64) []models.LogEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LogEvent
	for _, l := range r.logs {
		if l.NotificationID == id {
			out = append(out, l.Event)
		}
	}
	return out
}

func (r *memNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	n.ID = r.nextID
	cp := *n
	r.notifications[n.ID] = &cp
	return nil
}

func (r *memNotificationRepo) GetByID(ctx context.Context, id int64) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (r *memNotificationRepo) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	var out []models.Notification
	for _, n := range r.all() {
		if filter.Status != "" && string(n.Status) != filter.Status {
			continue
		}
		out = append(out, n)
	}
	return out, len(out), nil
}

func (r *memNotificationRepo) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.notifications[id]
	n.Status = models.NotificationSent
	n.SentAt = &sentAt
	n.Error = nil
	return nil
}

func (r *memNotificationRepo) MarkFailed(ctx context.Context, id int64, errMsg string, failedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.notifications[id]
	n.Status = models.NotificationFailed
	n.Error = &errMsg
	n.FailedAt = &failedAt
	return nil
}

func (r *memNotificationRepo) ClaimManualRetry(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok || n.Status != models.NotificationFailed || n.RetryCount >= n.MaxRetries {
		return false, nil
	}
	n.RetryCount++
	n.Status = models.NotificationPending
	n.Error = nil
	return true, nil
}

func (r *memNotificationRepo) FindRetryable(ctx context.Context, failedBefore time.Time) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range r.all() {
		if n.Status == models.NotificationFailed && n.RetryCount < n.MaxRetries &&
			n.FailedAt != nil && !n.FailedAt.After(failedBefore) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memNotificationRepo) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, notif := range r.notifications {
		if notif.Status == models.NotificationSent && notif.CreatedAt.Before(cutoff) {
			delete(r.notifications, id)
			n++
		}
	}
	return n, nil
}

func (r *memNotificationRepo) AddLog(ctx context.Context, entry *models.NotificationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = int64(len(r.logs) + 1)
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *memNotificationRepo) GetLogs(ctx context.Context, id int64) ([]models.NotificationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.NotificationLog{}
	for _, l := range r.logs {
		if l.NotificationID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memNotificationRepo) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.logs[:0]
	var n int64
	for _, l := range r.logs {
		if l.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	r.logs = kept
	return n, nil
}

func (r *memNotificationRepo) GetTemplate(ctx context.Context, id int64) (*models.NotificationTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, nil
	}
	return t, nil
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (q *fakeQueue) Enqueue(ctx context.Context, notificationID int64, delay time.Duration) (queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return queue.Job{}, q.err
	}
	q.ids = append(q.ids, notificationID)
	return queue.Job{ID: "job", NotificationID: notificationID}, nil
}

func (q *fakeQueue) enqueued() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64(nil), q.ids...)
}

type fakeDirectory struct {
	names    map[string]string
	contacts map[string]string
	carriers map[string]string
}

func (d *fakeDirectory) ServerName(ctx context.Context, serverID string) string {
	if name, ok := d.names[serverID]; ok {
		return name
	}
	return serverID
}

func (d *fakeDirectory) Contact(ctx context.Context, userID string, channel models.ChannelKind) Contact {
	key := userID + "/" + string(channel)
	if addr, ok := d.contacts[key]; ok {
		return Contact{Address: addr, Carrier: d.carriers[key]}
	}
	return Contact{Address: userID}
}

type sendCall struct {
	destination string
	subject     string
	content     string
}

type fakeProvider struct {
	mu     sync.Mutex
	result provider.Result
	calls  []sendCall
}

func (p *fakeProvider) Send(ctx context.Context, destination, subject, content string, metadata map[string]interface{}) provider.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, sendCall{destination: destination, subject: subject, content: content})
	return p.result
}
