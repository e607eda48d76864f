package specialerror

import (
	"context"
	"errors"

	errs "CProject/tools/errs"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var handlers []func(err error) *errs.CodeError

// AddErrHandler registers an extra classifier, checked before the built-ins.
func AddErrHandler(h func(err error) *errs.CodeError) error {
	if h == nil {
		return errs.New("nil handler")
	}
	handlers = append(handlers, h)
	return nil
}

// Classify maps an arbitrary error onto the service error taxonomy.
// Store "not found" conditions are not errors for idempotent delete paths,
// so callers should check those before classifying.
func Classify(err error) *errs.CodeError {
	if err == nil {
		return nil
	}
	for i := 0; i < len(handlers); i++ {
		if ce := handlers[i](err); ce != nil {
			return ce
		}
	}
	var codeErr *errs.CodeError
	if errors.As(err, &codeErr) {
		return codeErr
	}
	switch {
	case errors.Is(err, redis.Nil), errors.Is(err, mongo.ErrNoDocuments):
		ce := errs.ErrRecordNotFound
		return &ce
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		ce := errs.ErrBackendUnavailable.WithDetail(err.Error())
		return &ce
	default:
		ce := errs.ErrInternalServer.WithDetail(err.Error())
		return &ce
	}
}
