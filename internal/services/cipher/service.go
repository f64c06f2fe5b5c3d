package cipher

import (
	"go.uber.org/zap"

	"kakioki/internal/domain"
	"kakioki/internal/metrics"
)

// Service applies the package functions to batches and records, logging
// and counting per-item failures instead of returning them.
type Service struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New returns a Service. Both arguments may be nil.
func New(log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log, metrics: metrics.OrNop(m)}
}

// EncryptMedia encrypts every item with a URL. Items without one, and items
// that fail, are skipped.
func (s *Service) EncryptMedia(
	key domain.SharedKey,
	items []domain.MediaItem,
) ([]domain.EncryptedMediaDescriptor, []domain.DecryptedMedia) {
	descs := make([]domain.EncryptedMediaDescriptor, 0, len(items))
	local := make([]domain.DecryptedMedia, 0, len(items))
	for i, item := range items {
		if item.URL == "" {
			continue
		}
		d, m, err := EncryptMediaReference(key, item)
		if err != nil {
			s.log.Warn("media encrypt failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		descs = append(descs, d)
		local = append(local, m)
	}
	return descs, local
}

// DecryptMedia decrypts every descriptor that carries a ciphertext and nonce.
func (s *Service) DecryptMedia(key domain.SharedKey, descs []domain.EncryptedMediaDescriptor) []domain.DecryptedMedia {
	out := make([]domain.DecryptedMedia, 0, len(descs))
	for i, d := range descs {
		if d.Ciphertext == "" || d.Nonce == "" {
			continue
		}
		m, err := DecryptMediaReference(key, d)
		if err != nil {
			s.metrics.DecryptFailures.WithLabelValues("media").Inc()
			s.log.Warn("media decrypt failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out
}

// DecryptRecord builds a ChatMessage from a persisted record. It never
// fails: undecryptable text leaves Plaintext nil.
func (s *Service) DecryptRecord(key domain.SharedKey, rec domain.MessageRecord) domain.ChatMessage {
	msg := domain.ChatMessage{
		ID:              rec.ID,
		ClientMessageID: rec.ClientMessageID,
		SenderID:        rec.FromID,
		Ciphertext:      rec.Ciphertext,
		Nonce:           rec.Nonce,
		Metadata:        rec.Metadata.Clone(),
		Status:          rec.StatusMetadata.Clone(),
		CreatedAt:       rec.CreatedAt,
	}
	if msg.Metadata.Media == nil {
		msg.Metadata.Media = []domain.EncryptedMediaDescriptor{}
	}

	pt, err := DecryptText(key, rec.Ciphertext, rec.Nonce)
	if err != nil {
		s.metrics.DecryptFailures.WithLabelValues("text").Inc()
		s.log.Warn("message decrypt failed",
			zap.String("client_message_id", rec.ClientMessageID),
			zap.Error(err),
		)
	} else {
		msg.Plaintext = &pt
	}

	msg.Media = s.DecryptMedia(key, msg.Metadata.Media)
	msg.State = msg.Status.State()
	return msg
}
