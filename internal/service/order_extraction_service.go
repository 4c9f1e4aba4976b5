package service

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/anime-shed/order-image-relay/internal/errors"
	"github.com/anime-shed/order-image-relay/internal/extraction"
	"github.com/anime-shed/order-image-relay/internal/imageref"
	"github.com/anime-shed/order-image-relay/internal/loader"
	"github.com/anime-shed/order-image-relay/internal/observer"
	"github.com/anime-shed/order-image-relay/internal/reply"
)

// Client-facing messages. Each failing stage maps to exactly one of them.
const (
	MsgInvalidReference = "Invalid image reference"
	MsgLoadFailed       = "Failed to fetch or encode the image"
	MsgExtractionFailed = "Error processing image"
	MsgMalformedReply   = "Failed to extract JSON from response"
)

// ImageLoader resolves a reference to image bytes.
type ImageLoader interface {
	Load(ctx context.Context, ref imageref.Reference) (*loader.Image, error)
}

// ReferenceParser classifies raw image references.
type ReferenceParser interface {
	Parse(raw string) (imageref.Reference, error)
}

// OrderExtractionService runs the load, extract and parse pipeline.
type OrderExtractionService interface {
	ProcessImage(ctx context.Context, imageRef string) (any, error)
}

type orderExtractionService struct {
	refs      ReferenceParser
	loader    ImageLoader
	extractor extraction.Extractor
	events    observer.Subject
}

func NewOrderExtractionService(
	refs ReferenceParser,
	imageLoader ImageLoader,
	extractor extraction.Extractor,
	events observer.Subject,
) OrderExtractionService {
	if events == nil {
		events = observer.NewEventPublisher()
	}
	return &orderExtractionService{
		refs:      refs,
		loader:    imageLoader,
		extractor: extractor,
		events:    events,
	}
}

// ProcessImage returns the JSON value the model extracted from the image at
// imageRef. Every error it returns is an *apperrors.AppError.
func (s *orderExtractionService) ProcessImage(ctx context.Context, imageRef string) (any, error) {
	ref, err := s.refs.Parse(imageRef)
	if err != nil {
		return nil, apperrors.NewValidationError(MsgInvalidReference, err)
	}

	start := time.Now()
	img, err := s.loader.Load(ctx, ref)
	if err != nil {
		s.publish(ctx, observer.ImageLoadFailed, ref, start, err, nil)
		if errors.Is(err, loader.ErrSourceNotConfigured) {
			return nil, apperrors.NewValidationError(MsgInvalidReference, err)
		}
		return nil, apperrors.NewFetchError(MsgLoadFailed, err)
	}
	s.publish(ctx, observer.ImageLoaded, ref, start, nil, map[string]interface{}{
		"mime":        img.MIMEType,
		"image_bytes": len(img.Data),
	})

	start = time.Now()
	text, err := s.extractor.Extract(ctx, img)
	if err != nil {
		s.publish(ctx, observer.ExtractionFailed, ref, start, err, nil)
		return nil, apperrors.NewExtractionError(MsgExtractionFailed, err)
	}
	s.publish(ctx, observer.ExtractionCompleted, ref, start, nil, map[string]interface{}{
		"reply_chars": len(text),
	})

	start = time.Now()
	value, err := reply.Parse(text)
	if err != nil {
		s.publish(ctx, observer.ReplyMalformed, ref, start, err, nil)
		return nil, apperrors.NewMalformedReplyError(MsgMalformedReply, err)
	}
	s.publish(ctx, observer.ReplyParsed, ref, start, nil, nil)

	return value, nil
}

func (s *orderExtractionService) publish(ctx context.Context, t observer.EventType, ref imageref.Reference, start time.Time, err error, meta map[string]interface{}) {
	ev := observer.PipelineEvent{
		EventType: t,
		Timestamp: time.Now(),
		Reference: ref.String(),
		Duration:  time.Since(start),
		Metadata:  meta,
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
	}
	s.events.NotifyObservers(ctx, ev)
}
