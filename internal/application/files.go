package application

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"filetrack/internal/domain"
	"filetrack/internal/ports"
)

const DefaultMaxAttachmentBytes int64 = 5 << 20

type NewFile struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"`
}

type ReplyInput struct {
	Text       string             `json:"text"`
	Attachment *domain.Attachment `json:"attachment,omitempty"`
}

// FileCard is a file together with the values the dashboards derive from it.
type FileCard struct {
	domain.FileRecord
	AssigneeNames            []string `json:"assigneeNames"`
	DueSoon                  bool     `json:"dueSoon"`
	CanReply                 bool     `json:"canReply"`
	LatestAttachmentMimeType string   `json:"latestAttachmentMimeType,omitempty"`
}

type FileService struct {
	store              ports.Store
	authz              *AuthorizationService
	events             ports.EventPublisher
	logger             ports.Logger
	maxAttachmentBytes int64
	now                func() time.Time
	newID              func() string
}

func NewFileService(store ports.Store, authz *AuthorizationService, events ports.EventPublisher, logger ports.Logger, maxAttachmentBytes int64) *FileService {
	if maxAttachmentBytes <= 0 {
		maxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	return &FileService{
		store:              store,
		authz:              authz,
		events:             events,
		logger:             logger,
		maxAttachmentBytes: maxAttachmentBytes,
		now:                time.Now,
		newID:              uuid.NewString,
	}
}

func (s *FileService) Create(ctx context.Context, actor domain.Session, in NewFile) (domain.FileRecord, error) {
	if err := s.authz.Require(ctx, actor, domain.PermUploadFile); err != nil {
		return domain.FileRecord{}, err
	}
	name := strings.TrimSpace(in.Name)
	description := strings.TrimSpace(in.Description)
	if name == "" || description == "" || in.Deadline.IsZero() {
		return domain.FileRecord{}, domain.ErrInvalidInput
	}
	now := s.now().UTC()
	f := domain.FileRecord{
		ID:          "file-" + s.newID(),
		Name:        name,
		Description: description,
		UploadDate:  now,
		Deadline:    in.Deadline.UTC(),
		Status:      domain.StatusPending,
		History: []domain.HistoryEntry{
			{Action: domain.ActionCreated, User: actor.Name, Timestamp: now},
		},
	}
	err := s.store.UpdateFiles(ctx, func(files []domain.FileRecord) ([]domain.FileRecord, error) {
		return append(files, f), nil
	})
	if err != nil {
		return domain.FileRecord{}, err
	}
	s.logger.Info(ctx, "file created", "file_id", f.ID, "user_id", actor.ID)
	s.publish(ctx, f, f.History[0])
	return f, nil
}

// View opens a file. The first view by an assignee moves it from pending to
// seen.
func (s *FileService) View(ctx context.Context, actor domain.Session, fileID string) (domain.FileRecord, error) {
	return s.transition(ctx, actor, fileID, false, func(d directory, f *domain.FileRecord, now time.Time) []domain.HistoryEntry {
		if f.Status != domain.StatusPending || !f.AssignedToUser(actor.ID) {
			return nil
		}
		return []domain.HistoryEntry{setStatus(f, domain.StatusSeen, actor, now)}
	})
}

// BeginReply marks a pending or seen file as under process.
func (s *FileService) BeginReply(ctx context.Context, actor domain.Session, fileID string) (domain.FileRecord, error) {
	return s.transition(ctx, actor, fileID, true, func(d directory, f *domain.FileRecord, now time.Time) []domain.HistoryEntry {
		if f.Status != domain.StatusPending && f.Status != domain.StatusSeen {
			return nil
		}
		return []domain.HistoryEntry{setStatus(f, domain.StatusUnderProcess, actor, now)}
	})
}

// Reply submits the file. Submitting an already submitted file appends another
// entry.
func (s *FileService) Reply(ctx context.Context, actor domain.Session, fileID string, in ReplyInput) (domain.FileRecord, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return domain.FileRecord{}, domain.ErrInvalidInput
	}
	var attachment *domain.Attachment
	if in.Attachment != nil {
		a := *in.Attachment
		if err := validateAttachment(&a, s.maxAttachmentBytes); err != nil {
			return domain.FileRecord{}, err
		}
		attachment = &a
	}
	return s.transition(ctx, actor, fileID, true, func(d directory, f *domain.FileRecord, now time.Time) []domain.HistoryEntry {
		entry := domain.HistoryEntry{
			Action:     domain.ActionSubmitted,
			User:       actor.Name,
			Timestamp:  now,
			Details:    text,
			Attachment: attachment,
		}
		f.Status = domain.StatusSubmitted
		f.History = append(f.History, entry)
		return []domain.HistoryEntry{entry}
	})
}

func setStatus(f *domain.FileRecord, st domain.Status, actor domain.Session, now time.Time) domain.HistoryEntry {
	entry := domain.HistoryEntry{Action: domain.StatusChangedAction(st), User: actor.Name, Timestamp: now}
	f.Status = st
	f.History = append(f.History, entry)
	return entry
}

// transition runs fn on one file under the writer lock. The actor must see
// the file, and when replying is set must also pass the reply check.
func (s *FileService) transition(
	ctx context.Context,
	actor domain.Session,
	fileID string,
	replying bool,
	fn func(d directory, f *domain.FileRecord, now time.Time) []domain.HistoryEntry,
) (domain.FileRecord, error) {
	if actor.ID == "" {
		return domain.FileRecord{}, domain.ErrNoSession
	}
	d, err := s.authz.directory(ctx)
	if err != nil {
		return domain.FileRecord{}, err
	}
	var (
		result   domain.FileRecord
		appended []domain.HistoryEntry
	)
	err = s.store.UpdateFiles(ctx, func(files []domain.FileRecord) ([]domain.FileRecord, error) {
		idx := slices.IndexFunc(files, func(f domain.FileRecord) bool { return f.ID == fileID })
		if idx < 0 {
			return nil, domain.ErrNotFound
		}
		f := files[idx]
		if !d.hasPermission(actor, domain.PermViewAllFiles) && !f.AssignedToUser(actor.ID) {
			return nil, domain.ErrPermissionDenied
		}
		if replying && !d.canReply(f) {
			return nil, domain.ErrPermissionDenied
		}
		f.History = slices.Clone(f.History)
		appended = fn(d, &f, s.now().UTC())
		result = f
		if len(appended) == 0 {
			return nil, nil
		}
		files[idx] = f
		return files, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			s.logger.Warn(ctx, "file access denied", "file_id", fileID, "user_id", actor.ID)
		}
		return domain.FileRecord{}, err
	}
	for _, e := range appended {
		s.logger.Info(ctx, "file updated", "file_id", result.ID, "action", e.Action, "user_id", actor.ID)
		s.publish(ctx, result, e)
	}
	return result, nil
}

// Forward replaces the file's assignees. An empty set unassigns it.
func (s *FileService) Forward(ctx context.Context, actor domain.Session, fileID string, userIDs []string) (domain.FileRecord, error) {
	updated, err := s.forward(ctx, actor, []string{fileID}, userIDs)
	if err != nil {
		return domain.FileRecord{}, err
	}
	if len(updated) == 0 {
		return domain.FileRecord{}, domain.ErrNotFound
	}
	return updated[0], nil
}

// BulkForward assigns every listed file to the same users. Unknown file ids
// are skipped.
func (s *FileService) BulkForward(ctx context.Context, actor domain.Session, fileIDs, userIDs []string) ([]domain.FileRecord, error) {
	if len(fileIDs) == 0 || len(userIDs) == 0 {
		return nil, domain.ErrInvalidInput
	}
	return s.forward(ctx, actor, fileIDs, userIDs)
}

func (s *FileService) forward(ctx context.Context, actor domain.Session, fileIDs, userIDs []string) ([]domain.FileRecord, error) {
	if err := s.authz.Require(ctx, actor, domain.PermForwardFile); err != nil {
		return nil, err
	}
	d, err := s.authz.directory(ctx)
	if err != nil {
		return nil, err
	}
	targets := dedupe(userIDs)
	for _, id := range targets {
		if u, ok := d.user(id); ok && !d.assignableUser(u) {
			return nil, domain.ErrInvalidInput
		}
	}
	action := domain.AssignedAction(d.userNames(targets))
	now := s.now().UTC()

	updated := []domain.FileRecord{}
	err = s.store.UpdateFiles(ctx, func(files []domain.FileRecord) ([]domain.FileRecord, error) {
		for i, f := range files {
			if !slices.Contains(fileIDs, f.ID) {
				continue
			}
			f.AssignedTo = slices.Clone(targets)
			f.History = append(slices.Clone(f.History), domain.HistoryEntry{Action: action, User: actor.Name, Timestamp: now})
			files[i] = f
			updated = append(updated, f)
		}
		if len(updated) == 0 {
			return nil, nil
		}
		return files, nil
	})
	if err != nil {
		return nil, err
	}
	for _, f := range updated {
		s.logger.Info(ctx, "file forwarded", "file_id", f.ID, "assignees", len(targets), "user_id", actor.ID)
		s.publish(ctx, f, f.History[len(f.History)-1])
	}
	return updated, nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Reconcile applies the overdue sweep and writes only when a status changed.
func (s *FileService) Reconcile(ctx context.Context) (bool, error) {
	changed := false
	err := s.store.UpdateFiles(ctx, func(files []domain.FileRecord) ([]domain.FileRecord, error) {
		swept, ok := SweepOverdue(files, s.now())
		if !ok {
			return nil, nil
		}
		changed = true
		return swept, nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.logger.Info(ctx, "overdue sweep updated files")
	}
	return changed, nil
}

// List returns the files the actor may see: everything with VIEW_ALL_FILES,
// otherwise only files assigned to them.
func (s *FileService) List(ctx context.Context, actor domain.Session) ([]FileCard, error) {
	if actor.ID == "" {
		return nil, domain.ErrNoSession
	}
	if _, err := s.Reconcile(ctx); err != nil {
		return nil, err
	}
	d, err := s.authz.directory(ctx)
	if err != nil {
		return nil, err
	}
	files, err := s.store.Files(ctx)
	if err != nil {
		return nil, err
	}
	all := d.hasPermission(actor, domain.PermViewAllFiles)
	now := s.now()
	cards := []FileCard{}
	for _, f := range files {
		if all || f.AssignedToUser(actor.ID) {
			cards = append(cards, s.card(d, f, now))
		}
	}
	return cards, nil
}

func (s *FileService) card(d directory, f domain.FileRecord, now time.Time) FileCard {
	mime, _ := LatestAttachmentMimeType(f)
	return FileCard{
		FileRecord:               f,
		AssigneeNames:            d.userNames(f.AssignedTo),
		DueSoon:                  DueSoon(f, now),
		CanReply:                 d.canReply(f),
		LatestAttachmentMimeType: mime,
	}
}

func (s *FileService) Summary(ctx context.Context, actor domain.Session) (Summary, error) {
	cards, err := s.List(ctx, actor)
	if err != nil {
		return Summary{}, err
	}
	files := make([]domain.FileRecord, len(cards))
	for i, c := range cards {
		files[i] = c.FileRecord
	}
	return Summarize(files), nil
}

// Search matches term case-insensitively against name, description and
// assignee names. An empty term matches everything.
func (s *FileService) Search(ctx context.Context, actor domain.Session, term string) ([]FileCard, error) {
	cards, err := s.List(ctx, actor)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return cards, nil
	}
	out := []FileCard{}
	for _, c := range cards {
		if strings.Contains(strings.ToLower(c.Name), term) ||
			strings.Contains(strings.ToLower(c.Description), term) ||
			strings.Contains(strings.ToLower(strings.Join(c.AssigneeNames, ", ")), term) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *FileService) AssigneeNames(ctx context.Context, f domain.FileRecord) ([]string, error) {
	d, err := s.authz.directory(ctx)
	if err != nil {
		return nil, err
	}
	return d.userNames(f.AssignedTo), nil
}

func (s *FileService) publish(ctx context.Context, f domain.FileRecord, e domain.HistoryEntry) {
	if s.events == nil {
		return
	}
	event := domain.AuditEvent{
		FileID:     f.ID,
		FileName:   f.Name,
		Action:     e.Action,
		User:       e.User,
		Timestamp:  e.Timestamp,
		Status:     f.Status,
		AssignedTo: slices.Clone(f.AssignedTo),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error(ctx, "publish audit event failed", "file_id", f.ID, "error", err)
	}
}
