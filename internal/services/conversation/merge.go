package conversation

import "kakioki/internal/domain"

// mergeMessage folds next into cur. Set fields of next win; metadata and
// status merge field-wise; decrypted media is replaced only by a non-empty
// list.
func mergeMessage(cur, next domain.ChatMessage) domain.ChatMessage {
	out := cur.Clone()
	if next.ID != nil {
		id := *next.ID
		out.ID = &id
	}
	if next.SenderID != 0 {
		out.SenderID = next.SenderID
	}
	if next.Ciphertext != "" {
		out.Ciphertext = next.Ciphertext
	}
	if next.Nonce != "" {
		out.Nonce = next.Nonce
	}
	if next.Plaintext != nil {
		pt := *next.Plaintext
		out.Plaintext = &pt
	}
	if !next.CreatedAt.IsZero() {
		out.CreatedAt = next.CreatedAt
	}
	out.Metadata = mergeMetadata(out.Metadata, next.Metadata)
	if len(next.Media) > 0 {
		out.Media = append([]domain.DecryptedMedia{}, next.Media...)
	}
	out.Status = mergeStatus(out.Status, next.Status)
	out.State = out.Status.State()
	if next.Error != "" {
		out.Error = next.Error
	}
	if out.State != domain.StateError {
		out.Error = ""
	}
	return out
}

func mergeMetadata(cur, next domain.MessageMetadata) domain.MessageMetadata {
	out := cur.Clone()
	if next.Text != "" {
		out.Text = next.Text
	}
	if len(next.Media) > 0 {
		out.Media = append([]domain.EncryptedMediaDescriptor{}, next.Media...)
	}
	if next.Links != nil {
		out.Links = append([]string{}, next.Links...)
	}
	if next.Previews != nil {
		out.Previews = append([]domain.LinkPreview{}, next.Previews...)
	}
	out.Extras = mergeExtras(out.Extras, next.Extras)
	return out
}

// mergeStatus overwrites every field present in next. Delivery is the
// exception and only moves as acceptDelivery allows.
func mergeStatus(cur, next domain.StatusMetadata) domain.StatusMetadata {
	out := cur.Clone()
	if acceptDelivery(cur.Delivery, next.Delivery) {
		out.Delivery = next.Delivery
	}
	if next.SentAt != nil {
		out.SentAt = next.SentAt
	}
	if next.DeliveredAt != nil {
		out.DeliveredAt = next.DeliveredAt
	}
	if next.ReadAt != nil {
		out.ReadAt = next.ReadAt
	}
	if next.ErrorCode != "" {
		out.ErrorCode = next.ErrorCode
	}
	if next.Retries > out.Retries {
		out.Retries = next.Retries
	}
	if out.Delivery != domain.DeliveryFailed {
		out.ErrorCode = ""
	}
	out.Extras = mergeExtras(out.Extras, next.Extras)
	return out
}

func acceptDelivery(cur, next domain.DeliveryState) bool {
	switch {
	case next == "" || next == cur:
		return false
	case cur == "":
		return true
	case cur == domain.DeliveryRead:
		return false
	case next == domain.DeliveryFailed:
		return cur == domain.DeliverySending || cur == domain.DeliverySent
	case cur == domain.DeliveryFailed:
		return next.Rank() > 0
	}
	return next.Rank() > cur.Rank()
}

func mergeExtras(cur, next map[string]any) map[string]any {
	if len(next) == 0 {
		return cur
	}
	out := make(map[string]any, len(cur)+len(next))
	for k, v := range cur {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}
