package audit

import (
	"context"
	"encoding/json"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LogOptions struct {
	Branch      string
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    string
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// Writer records audit rows. Writes are best-effort: a failure is logged and
// never returned to the operation being audited.
type Writer struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewWriter(db *gorm.DB, log *zap.Logger) *Writer {
	return &Writer{db: db, log: log}
}

func (w *Writer) Write(ctx context.Context, opts LogOptions) {
	if w == nil {
		return
	}

	if opts.UserName == "" && opts.UserID != 0 {
		var user models.User
		if err := w.db.WithContext(ctx).Select("name").First(&user, opts.UserID).Error; err == nil {
			opts.UserName = user.Name
		}
	}

	entry := models.AuditLog{
		BranchKey:   models.BranchKey(opts.Branch),
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  toJSON(opts.Before),
		AfterData:   toJSON(opts.After),
	}

	if err := w.db.WithContext(ctx).Create(&entry).Error; err != nil {
		w.log.Warn("audit log could not be written",
			zap.String("entity_type", opts.EntityType),
			zap.String("entity_id", opts.EntityID),
			zap.Error(err))
	}
}

// toJSON never returns an empty value: jsonb columns store a JSON null
// rather than SQL NULL.
func toJSON(v any) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
