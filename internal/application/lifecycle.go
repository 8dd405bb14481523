package application

import (
	"encoding/base64"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"filetrack/internal/domain"
)

// SweepOverdue returns a copy of files with every unsubmitted file whose
// deadline has passed marked overdue, and whether anything changed.
func SweepOverdue(files []domain.FileRecord, now time.Time) ([]domain.FileRecord, bool) {
	out := make([]domain.FileRecord, len(files))
	changed := false
	for i, f := range files {
		if f.Status != domain.StatusSubmitted && f.Status != domain.StatusOverdue && f.Deadline.Before(now) {
			f.Status = domain.StatusOverdue
			changed = true
		}
		out[i] = f
	}
	return out, changed
}

type StatusCount struct {
	Status domain.Status `json:"status"`
	Count  int           `json:"count"`
}

type Summary struct {
	Total     int           `json:"total"`
	Pending   int           `json:"pending"`
	InProcess int           `json:"inProcess"`
	Overdue   int           `json:"overdue"`
	ByStatus  []StatusCount `json:"byStatus"`
}

// Summarize counts files the way the admin dashboard does: pending includes
// files that were seen but not yet picked up.
func Summarize(files []domain.FileRecord) Summary {
	counts := map[domain.Status]int{}
	for _, f := range files {
		counts[f.Status]++
	}
	s := Summary{
		Total:     len(files),
		Pending:   counts[domain.StatusPending] + counts[domain.StatusSeen],
		InProcess: counts[domain.StatusUnderProcess],
		Overdue:   counts[domain.StatusOverdue],
	}
	for _, st := range domain.AllStatuses {
		s.ByStatus = append(s.ByStatus, StatusCount{Status: st, Count: counts[st]})
	}
	return s
}

// DueSoon reports an open file whose deadline is between zero and two days
// away, counting partial days as whole.
func DueSoon(f domain.FileRecord, now time.Time) bool {
	if f.Status == domain.StatusSubmitted || f.Status == domain.StatusOverdue {
		return false
	}
	days := math.Ceil(f.Deadline.Sub(now).Hours() / 24)
	return days >= 0 && days <= 2
}

// LatestAttachmentMimeType returns the mime type on the newest history entry
// carrying an attachment. Ties go to the earlier entry.
func LatestAttachmentMimeType(f domain.FileRecord) (string, bool) {
	var latest *domain.HistoryEntry
	for i := range f.History {
		h := &f.History[i]
		if h.Attachment == nil {
			continue
		}
		if latest == nil || h.Timestamp.After(latest.Timestamp) {
			latest = h
		}
	}
	if latest == nil {
		return "", false
	}
	return latest.Attachment.MimeType, true
}

// validateAttachment checks that content is a data URL no larger than max
// bytes once decoded, and fills MimeType from the URL when missing.
func validateAttachment(a *domain.Attachment, max int64) error {
	if a == nil {
		return nil
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: attachment name is required", domain.ErrInvalidInput)
	}
	rest, ok := strings.CutPrefix(a.Content, "data:")
	if !ok {
		return fmt.Errorf("%w: attachment content must be a data URL", domain.ErrInvalidInput)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return fmt.Errorf("%w: malformed data URL", domain.ErrInvalidInput)
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	var size int64
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return fmt.Errorf("%w: attachment is not valid base64", domain.ErrInvalidInput)
		}
		size = int64(len(decoded))
	} else {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return fmt.Errorf("%w: attachment is not valid url encoding", domain.ErrInvalidInput)
		}
		size = int64(len(decoded))
	}
	if max > 0 && size > max {
		return fmt.Errorf("%w: attachment exceeds %d bytes", domain.ErrInvalidInput, max)
	}
	if a.MimeType == "" {
		if mt, _, _ := strings.Cut(mediaType, ";"); mt != "" {
			a.MimeType = mt
		}
	}
	return nil
}
