package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sakif/cofounder-match/internal/apperror"
	"github.com/sakif/cofounder-match/internal/model"
	"github.com/sakif/cofounder-match/internal/repository"
)

// Hand-written in-memory fakes of the repository interfaces. They keep just
// enough of the storage rules (conditional transitions, unique participant
// keys) for the service logic to be tested without SQLite.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// =========================================================================
// MATCHES
// =========================================================================

type fakeMatchRepo struct {
	mu      sync.Mutex
	matches map[string]*model.Match
	nextID  int
	clock   time.Time
	err     error // returned by every call when set
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{
		matches: make(map[string]*model.Match),
		clock:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeMatchRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeMatchRepo) CreateMatch(_ context.Context, m *model.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.nextID++
	m.ID = fmt.Sprintf("match-%d", f.nextID)
	m.CreatedAt = f.tick()
	stored := *m
	stored.Feedback = append([]model.Feedback{}, m.Feedback...)
	f.matches[m.ID] = &stored
	return nil
}

func (f *fakeMatchRepo) GetMatch(_ context.Context, id string) (*model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.copyOf(id)
}

func (f *fakeMatchRepo) copyOf(id string) (*model.Match, error) {
	m, ok := f.matches[id]
	if !ok {
		return nil, apperror.NotFound("match", id)
	}
	out := *m
	out.Feedback = append([]model.Feedback{}, m.Feedback...)
	return &out, nil
}

func (f *fakeMatchRepo) TransitionMatch(_ context.Context, id string, to model.MatchStatus) (*model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.matches[id]
	if !ok {
		return nil, apperror.NotFound("match", id)
	}
	if m.Status != model.MatchPending {
		return nil, apperror.InvalidTransition("match", id, string(m.Status), string(to))
	}
	m.Status = to
	at := f.tick()
	m.DecidedAt = &at
	return f.copyOf(id)
}

func (f *fakeMatchRepo) AppendFeedback(_ context.Context, matchID string, fb *model.Feedback) (*model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.matches[matchID]
	if !ok {
		return nil, apperror.NotFound("match", matchID)
	}
	fb.CreatedAt = f.tick()
	m.Feedback = append(m.Feedback, *fb)
	return f.copyOf(matchID)
}

func (f *fakeMatchRepo) ListMatchesForUser(_ context.Context, userID string, status model.MatchStatus, opts repository.ListOptions) ([]model.Match, error) {
	return f.list(opts, func(m *model.Match) bool {
		return m.HasUser(userID) && (status == "" || m.Status == status)
	})
}

func (f *fakeMatchRepo) ListMatchesByStatus(_ context.Context, status model.MatchStatus, opts repository.ListOptions) ([]model.Match, error) {
	return f.list(opts, func(m *model.Match) bool { return m.Status == status })
}

func (f *fakeMatchRepo) list(opts repository.ListOptions, keep func(*model.Match) bool) ([]model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []model.Match{}
	for _, m := range f.matches {
		if keep(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func (f *fakeMatchRepo) CountMatchesByStatus(_ context.Context, status model.MatchStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for _, m := range f.matches {
		if m.Status == status {
			n++
		}
	}
	return n, nil
}

// setStatus bypasses the state machine; statistics tests use it to simulate
// data the transition rules would never produce.
func (f *fakeMatchRepo) setStatus(id string, status model.MatchStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches[id].Status = status
}

func paginate[T any](items []T, opts repository.ListOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// =========================================================================
// CONVERSATIONS
// =========================================================================

type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	byKey         map[string]string
	messages      map[string][]model.Message
	nextID        int
	clock         time.Time

	createCalls int
	// conflictOnce makes the next CreateConversation insert the row under
	// another id and report a conflict, as if a concurrent writer won.
	conflictOnce bool

	// When findGate is set, FindConversationByKey signals findEntered and
	// then waits for findGate to close or for its ctx to end.
	findGate    chan struct{}
	findEntered chan struct{}
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		conversations: make(map[string]*model.Conversation),
		byKey:         make(map[string]string),
		messages:      make(map[string][]model.Message),
		clock:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeConversationRepo) FindConversationByKey(ctx context.Context, key string) (*model.Conversation, error) {
	if f.findGate != nil {
		select {
		case f.findEntered <- struct{}{}:
		default:
		}
		select {
		case <-f.findGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byKey[key]
	if !ok {
		return nil, apperror.NotFound("conversation", key)
	}
	return f.copyOf(id), nil
}

func (f *fakeConversationRepo) CreateConversation(_ context.Context, c *model.Conversation, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++

	if f.conflictOnce {
		f.conflictOnce = false
		f.insert(&model.Conversation{Participants: c.Participants}, key)
		return apperror.Conflict("conversation", key)
	}
	if _, exists := f.byKey[key]; exists {
		return apperror.Conflict("conversation", key)
	}
	f.insert(c, key)
	return nil
}

func (f *fakeConversationRepo) insert(c *model.Conversation, key string) {
	f.nextID++
	c.ID = fmt.Sprintf("conv-%d", f.nextID)
	f.clock = f.clock.Add(time.Second)
	c.CreatedAt = f.clock
	c.LastMessageAt = f.clock
	stored := *c
	stored.Participants = append([]string(nil), c.Participants...)
	f.conversations[c.ID] = &stored
	f.byKey[key] = c.ID
}

func (f *fakeConversationRepo) copyOf(id string) *model.Conversation {
	c := *f.conversations[id]
	c.Participants = append([]string(nil), c.Participants...)
	return &c
}

func (f *fakeConversationRepo) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conversations[id]; !ok {
		return nil, apperror.NotFound("conversation", id)
	}
	return f.copyOf(id), nil
}

func (f *fakeConversationRepo) AppendMessage(_ context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[msg.ConversationID]
	if !ok {
		return apperror.NotFound("conversation", msg.ConversationID)
	}
	f.clock = f.clock.Add(time.Second)
	log := f.messages[c.ID]
	msg.ID = fmt.Sprintf("%s-msg-%d", c.ID, len(log)+1)
	msg.Seq = int64(len(log) + 1)
	msg.Timestamp = f.clock
	msg.ReadStatus = false
	f.messages[c.ID] = append(log, *msg)
	c.LastMessageAt = msg.Timestamp
	return nil
}

func (f *fakeConversationRepo) ListMessages(_ context.Context, conversationID string, opts repository.ListOptions) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]model.Message{}, f.messages[conversationID]...)
	return paginate(out, opts), nil
}

func (f *fakeConversationRepo) ListAllMessages(_ context.Context, conversationID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message{}, f.messages[conversationID]...), nil
}

func (f *fakeConversationRepo) MarkRead(_ context.Context, conversationID, readerID string, upto time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conversations[conversationID]; !ok {
		return 0, apperror.NotFound("conversation", conversationID)
	}
	var n int64
	log := f.messages[conversationID]
	for i := range log {
		if log[i].SenderID != readerID && !log[i].Timestamp.After(upto) && !log[i].ReadStatus {
			log[i].ReadStatus = true
			n++
		}
	}
	return n, nil
}

func (f *fakeConversationRepo) ListConversationsForUser(_ context.Context, userID string, opts repository.ListOptions) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Conversation{}
	for id, c := range f.conversations {
		if c.HasParticipant(userID) {
			out = append(out, *f.copyOf(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return paginate(out, opts), nil
}

func (f *fakeConversationRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, c := range f.conversations {
		if !c.HasParticipant(userID) {
			continue
		}
		for _, m := range f.messages[id] {
			if m.SenderID != userID && !m.ReadStatus {
				n++
			}
		}
	}
	return n, nil
}

// =========================================================================
// STATISTICS AND MEMBERS
// =========================================================================

type fakeStatisticsRepo struct {
	mu   sync.Mutex
	snap *model.StatisticsSnapshot
}

func (f *fakeStatisticsRepo) GetStatistics(_ context.Context) (*model.StatisticsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		f.snap = &model.StatisticsSnapshot{}
	}
	out := *f.snap
	return &out, nil
}

func (f *fakeStatisticsRepo) UpdateStatistics(_ context.Context, fn func(*model.StatisticsSnapshot) error) (*model.StatisticsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		f.snap = &model.StatisticsSnapshot{}
	}
	work := *f.snap
	if err := fn(&work); err != nil {
		return nil, err
	}
	f.snap = &work
	out := work
	return &out, nil
}

type fakeMemberRepo struct {
	mu      sync.Mutex
	members map[string]time.Time
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{members: make(map[string]time.Time)}
}

func (f *fakeMemberRepo) TouchMember(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.members[userID]; !ok || at.After(prev) {
		f.members[userID] = at
	}
	return nil
}

func (f *fakeMemberRepo) CountMembers(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.members)), nil
}

func (f *fakeMemberRepo) CountActiveSince(_ context.Context, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, at := range f.members {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

// =========================================================================
// REPORTS
// =========================================================================

type fakeReportRepo struct {
	mu      sync.Mutex
	reports map[string]*model.Report
	order   []string
	nextID  int
	clock   time.Time
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{
		reports: make(map[string]*model.Report),
		clock:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeReportRepo) CreateReport(_ context.Context, r *model.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	r.ID = fmt.Sprintf("report-%d", f.nextID)
	r.CreatedAt = f.clock
	r.UpdatedAt = f.clock
	stored := *r
	f.reports[r.ID] = &stored
	f.order = append(f.order, r.ID)
	return nil
}

func (f *fakeReportRepo) GetReport(_ context.Context, id string) (*model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, apperror.NotFound("report", id)
	}
	out := *r
	return &out, nil
}

func (f *fakeReportRepo) UpdateReportStatus(_ context.Context, id string, from, to model.ReportStatus) (*model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, apperror.NotFound("report", id)
	}
	if r.Status != from {
		return nil, apperror.InvalidTransition("report", id, string(r.Status), string(to))
	}
	f.clock = f.clock.Add(time.Second)
	r.Status = to
	r.UpdatedAt = f.clock
	out := *r
	return &out, nil
}

func (f *fakeReportRepo) ListReportsByReporter(_ context.Context, reporterID string, opts repository.ListOptions) ([]model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Report
	for i := len(f.order) - 1; i >= 0; i-- {
		if r := f.reports[f.order[i]]; r.ReporterID == reporterID {
			out = append(out, *r)
		}
	}
	return paginate(out, opts), nil
}

func (f *fakeReportRepo) ListReportsByStatus(_ context.Context, status model.ReportStatus, opts repository.ListOptions) ([]model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Report
	for _, id := range f.order {
		if r := f.reports[id]; r.Status == status {
			out = append(out, *r)
		}
	}
	return paginate(out, opts), nil
}
