package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supportdesk-backend/internal/complaints"
	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	"github.com/angelmondragon/supportdesk-backend/pkg/chatcrypto"
	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

const (
	// DefaultMaxMessageLength bounds message content in characters.
	DefaultMaxMessageLength = 4000
	rateLimitWindow         = time.Minute
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RateLimiter is a fixed-window counter keyed by scope.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// ServiceParams groups dependencies for the chat service.
type ServiceParams struct {
	DB                txRunner
	Complaints        complaints.Repository
	Messages          Repository
	Cipher            *chatcrypto.Cipher
	Limiter           RateLimiter
	MessagesPerMinute int
	MaxMessageLength  int
	Notifier          notify.Notifier
	Logger            *logger.Logger
	Now               func() time.Time
}

// SendInput is one outgoing chat message.
type SendInput struct {
	ComplaintID uuid.UUID
	Content     string
}

// MessageView is a decrypted message as clients see it.
type MessageView struct {
	ID          uuid.UUID        `json:"id"`
	ComplaintID uuid.UUID        `json:"complaintId"`
	Sender      enums.SenderType `json:"sender"`
	SenderID    uuid.UUID        `json:"senderId"`
	Content     string           `json:"content"`
	Timestamp   time.Time        `json:"timestamp"`
}

// History is the full conversation of a complaint.
type History struct {
	ComplaintID uuid.UUID             `json:"complaintId"`
	Status      enums.ComplaintStatus `json:"status"`
	Messages    []MessageView         `json:"messages"`
}

// PresencePayload is the body of user-joined and user-left.
type PresencePayload struct {
	ComplaintID uuid.UUID  `json:"complaintId"`
	UserID      uuid.UUID  `json:"userId"`
	Role        enums.Role `json:"role"`
	Name        string     `json:"name,omitempty"`
}

// Service is the chat channel.
type Service interface {
	Join(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) (*History, error)
	Leave(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) error
	Send(ctx context.Context, principal auth.Principal, input SendInput) (*MessageView, error)
	History(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) (*History, error)
}

type service struct {
	db         txRunner
	complaints complaints.Repository
	messages   Repository
	cipher     *chatcrypto.Cipher
	limiter    RateLimiter
	perMinute  int64
	maxLength  int
	notifier   notify.Notifier
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the chat service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db is required")
	}
	if params.Complaints == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "complaint repo is required")
	}
	if params.Messages == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message repo is required")
	}
	if params.Cipher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cipher is required")
	}
	if params.MaxMessageLength <= 0 {
		params.MaxMessageLength = DefaultMaxMessageLength
	}
	if params.Notifier == nil {
		params.Notifier = notify.Nop{}
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		db:         params.DB,
		complaints: params.Complaints,
		messages:   params.Messages,
		cipher:     params.Cipher,
		limiter:    params.Limiter,
		perMinute:  int64(params.MessagesPerMinute),
		maxLength:  params.MaxMessageLength,
		notifier:   params.Notifier,
		logg:       params.Logger,
		now:        params.Now,
	}, nil
}

// Join returns the history and announces the principal to the room.
func (s *service) Join(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) (*History, error) {
	history, err := s.History(ctx, principal, complaintID)
	if err != nil {
		return nil, err
	}
	s.notifier.Emit(ctx, notify.Event{
		Name:     notify.EventUserJoined,
		Audience: notify.Complaint(complaintID),
		Payload:  PresencePayload{ComplaintID: complaintID, UserID: principal.ID, Role: principal.Role, Name: principal.Name},
	})
	return history, nil
}

// Leave announces that the principal left the room.
func (s *service) Leave(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) error {
	if complaintID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "complaint id is required")
	}
	s.notifier.Emit(ctx, notify.Event{
		Name:     notify.EventUserLeft,
		Audience: notify.Complaint(complaintID),
		Payload:  PresencePayload{ComplaintID: complaintID, UserID: principal.ID, Role: principal.Role, Name: principal.Name},
	})
	return nil
}

// Send stores an encrypted message and broadcasts the plaintext to the
// complaint room. The first message on an assigned complaint moves it to
// in-progress in the same transaction.
func (s *service) Send(ctx context.Context, principal auth.Principal, input SendInput) (*MessageView, error) {
	content := strings.TrimSpace(input.Content)
	if input.ComplaintID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "complaint id is required").
			WithDetails(map[string]string{"complaintId": "is required"})
	}
	if content == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message content is required").
			WithDetails(map[string]string{"content": "is required"})
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message is too long").
			WithDetails(map[string]string{"content": fmt.Sprintf("must be at most %d", s.maxLength)})
	}
	if err := s.allow(ctx, principal); err != nil {
		return nil, err
	}

	sealed, err := s.cipher.Encrypt(content, input.ComplaintID[:])
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encrypt message")
	}

	var (
		complaint *models.Complaint
		msg       *models.ComplaintMessage
		started   bool
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		crepo := s.complaints.WithTx(tx)
		c, err := crepo.FindForUpdate(ctx, input.ComplaintID)
		if err != nil {
			return err
		}
		if err := complaints.ValidateAccess(principal, c); err != nil {
			return err
		}
		if c.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "complaint is "+c.Status.String()).
				WithDetails(map[string]any{"status": c.Status})
		}

		now := s.now().UTC()
		msg = &models.ComplaintMessage{
			ID:               uuid.New(),
			ComplaintID:      c.ID,
			Sender:           enums.SenderForRole(principal.Role),
			SenderID:         principal.ID,
			EncryptedContent: sealed.Content,
			IV:               sealed.IV,
			CreatedAt:        now,
		}
		if err := s.messages.WithTx(tx).Create(ctx, msg); err != nil {
			return err
		}
		started, err = crepo.MarkInProgress(ctx, c.ID, now)
		if err != nil {
			return err
		}
		if started {
			c.Status = enums.ComplaintStatusInProgress
			c.UpdatedAt = now
		}
		complaint = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	view := MessageView{
		ID:          msg.ID,
		ComplaintID: msg.ComplaintID,
		Sender:      msg.Sender,
		SenderID:    msg.SenderID,
		Content:     content,
		Timestamp:   msg.CreatedAt,
	}
	events := []notify.Event{{Name: notify.EventNewMessage, Audience: notify.Complaint(complaint.ID), Payload: view}}
	if started {
		events = append(events, notify.Event{
			Name:     notify.EventComplaintStatus,
			Audience: notify.Complaint(complaint.ID),
			Payload:  complaints.StatusOf(complaint, "conversation started"),
		})
	}
	s.notifier.Emit(ctx, events...)
	return &view, nil
}

// History returns every message of the complaint in order. Messages that
// cannot be opened are replaced with a placeholder instead of failing.
func (s *service) History(ctx context.Context, principal auth.Principal, complaintID uuid.UUID) (*History, error) {
	if complaintID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "complaint id is required")
	}
	c, err := s.complaints.Find(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if err := complaints.ValidateAccess(principal, c); err != nil {
		return nil, err
	}
	rows, err := s.messages.ListByComplaint(ctx, complaintID)
	if err != nil {
		return nil, err
	}

	views := make([]MessageView, 0, len(rows))
	failed := 0
	for _, row := range rows {
		content, ok := s.cipher.DecryptOrPlaceholder(chatcrypto.Sealed{Content: row.EncryptedContent, IV: row.IV}, complaintID[:])
		if !ok {
			failed++
		}
		views = append(views, MessageView{
			ID:          row.ID,
			ComplaintID: row.ComplaintID,
			Sender:      row.Sender,
			SenderID:    row.SenderID,
			Content:     content,
			Timestamp:   row.CreatedAt,
		})
	}
	if failed > 0 && s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"complaint_id": complaintID.String(),
			"unreadable":   failed,
		}), "chat history contains unreadable messages")
	}
	return &History{ComplaintID: c.ID, Status: c.Status, Messages: views}, nil
}

// allow applies the per-principal send limit. A limiter outage lets the
// message through.
func (s *service) allow(ctx context.Context, principal auth.Principal) error {
	if s.limiter == nil || s.perMinute <= 0 {
		return nil
	}
	ok, _, err := s.limiter.FixedWindowAllow(ctx, "chat:"+principal.ID.String(), s.perMinute, rateLimitWindow)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithUserID(ctx, principal.ID.String()), "chat rate limiter unavailable: "+err.Error())
		}
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many messages, slow down")
	}
	return nil
}
