package transfer

import (
	"context"
	"fmt"
	"log"

	"github.com/hypemix/hypemix/internal/apperr"
	"github.com/hypemix/hypemix/internal/models"
	"github.com/hypemix/hypemix/internal/storage"
)

// Transport is how a payload crosses a stage boundary.
type Transport string

const (
	// TransportInline embeds the bytes in the request/response body.
	TransportInline Transport = "inline"
	// TransportBlob uploads the bytes and passes a URL instead.
	TransportBlob Transport = "blob"
)

const mib = 1024 * 1024

// Selector decides, per payload, whether bytes travel inline or through blob
// storage, and converts assets between the two representations.
type Selector struct {
	store           *storage.Store
	inlineThreshold int64 // below this: inline
	maxPayload      int64 // above this: rejected
}

func NewSelector(store *storage.Store, inlineThresholdMB, maxPayloadMB int) *Selector {
	return &Selector{
		store:           store,
		inlineThreshold: int64(inlineThresholdMB) * mib,
		maxPayload:      int64(maxPayloadMB) * mib,
	}
}

// ChooseTransport is a pure function of payload size: inline below the
// threshold, blob up to the hard maximum, error above it.
func (s *Selector) ChooseTransport(sizeBytes int64) (Transport, error) {
	if sizeBytes > s.maxPayload {
		return "", apperr.New(apperr.ClassPayloadTooLarge,
			"Payload of %.1fMB exceeds the %dMB maximum", float64(sizeBytes)/mib, s.maxPayload/mib)
	}
	if sizeBytes < s.inlineThreshold {
		return TransportInline, nil
	}
	return TransportBlob, nil
}

// Pack prepares an inline asset for transfer. When the blob transport is
// chosen the bytes are uploaded under key and the asset is rewritten to its
// indirect representation; otherwise the asset is returned unchanged.
func (s *Selector) Pack(ctx context.Context, asset models.AudioAsset, key string) (models.AudioAsset, error) {
	if !asset.Inline() {
		if asset.URL == "" {
			return models.AudioAsset{}, apperr.New(apperr.ClassValidation,
				"Audio asset has neither inline data nor a URL")
		}
		return asset, nil
	}

	transport, err := s.ChooseTransport(int64(len(asset.Data)))
	if err != nil {
		return models.AudioAsset{}, err
	}

	if transport == TransportInline {
		asset.Size = int64(len(asset.Data))
		return asset, nil
	}

	contentType := asset.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	log.Printf("[Transfer] Payload %.1fMB over inline threshold, uploading to %s", float64(len(asset.Data))/mib, key)

	url, err := s.store.Put(ctx, key, asset.Data, contentType)
	if err != nil {
		return models.AudioAsset{}, apperr.Wrap(apperr.ClassUpstreamUnavailable, err, "Failed to store audio payload")
	}

	return models.AudioAsset{
		Name:        asset.Name,
		ContentType: contentType,
		Size:        int64(len(asset.Data)),
		URL:         url,
	}, nil
}

// Resolve returns the full bytes of an asset, dereferencing the URL when the
// asset is indirect. Every stage buffers its whole input; there is no
// streamed consumption.
func (s *Selector) Resolve(ctx context.Context, asset models.AudioAsset) ([]byte, error) {
	if asset.Inline() {
		return asset.Data, nil
	}
	if asset.URL == "" {
		return nil, apperr.New(apperr.ClassValidation, "Audio asset has neither inline data nor a URL")
	}

	data, err := s.store.Get(ctx, asset.URL)
	if err != nil {
		return nil, apperr.Wrap(apperr.ClassUpstreamUnavailable, err, "Failed to fetch stored audio payload")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("stored payload at %s is empty", asset.URL)
	}
	return data, nil
}
