package cipher

import (
	"errors"

	"kakioki/internal/crypto"
	"kakioki/internal/domain"
)

// errNoReference is returned for items that carry nothing to encrypt or decrypt.
var errNoReference = errors.New("media item has no reference")

// EncryptMediaReference encrypts item.URL and returns the wire descriptor
// together with the local decrypted view of the same item.
func EncryptMediaReference(
	key domain.SharedKey,
	item domain.MediaItem,
) (domain.EncryptedMediaDescriptor, domain.DecryptedMedia, error) {
	if item.URL == "" {
		return domain.EncryptedMediaDescriptor{}, domain.DecryptedMedia{}, errNoReference
	}
	ct, nonce, err := EncryptText(key, item.URL)
	if err != nil {
		return domain.EncryptedMediaDescriptor{}, domain.DecryptedMedia{}, err
	}
	digest := crypto.Digest(item.URL)
	desc := domain.EncryptedMediaDescriptor{
		URL:        "",
		Ciphertext: ct,
		Nonce:      nonce,
		Type:       item.Type,
		Format:     item.Format,
		Size:       item.Size,
		Width:      item.Width,
		Height:     item.Height,
		Digest:     digest,
		Thumbnail:  item.Thumbnail,
		Name:       item.Name,
	}
	return desc, domain.DecryptedMedia{
		Source:    item.URL,
		Type:      item.Type,
		Format:    item.Format,
		Size:      item.Size,
		Width:     item.Width,
		Height:    item.Height,
		Digest:    digest,
		Thumbnail: item.Thumbnail,
		Name:      item.Name,
	}, nil
}

// DecryptMediaReference recovers the reference carried by desc.
func DecryptMediaReference(key domain.SharedKey, desc domain.EncryptedMediaDescriptor) (domain.DecryptedMedia, error) {
	if desc.Ciphertext == "" || desc.Nonce == "" {
		return domain.DecryptedMedia{}, errNoReference
	}
	source, err := DecryptText(key, desc.Ciphertext, desc.Nonce)
	if err != nil {
		return domain.DecryptedMedia{}, err
	}
	return domain.DecryptedMedia{
		Source:    source,
		Type:      desc.Type,
		Format:    desc.Format,
		Size:      desc.Size,
		Width:     desc.Width,
		Height:    desc.Height,
		Digest:    desc.Digest,
		Thumbnail: desc.Thumbnail,
		Name:      desc.Name,
	}, nil
}

// MediaToUploaded turns decrypted attachments back into uploadable items
// for a resend. Only images and videos with a source survive.
func MediaToUploaded(items []domain.DecryptedMedia) []domain.MediaItem {
	out := make([]domain.MediaItem, 0, len(items))
	for _, m := range items {
		if m.Source == "" || (m.Type != domain.MediaImage && m.Type != domain.MediaVideo) {
			continue
		}
		out = append(out, domain.MediaItem{
			URL:       m.Source,
			Type:      m.Type,
			Format:    m.Format,
			Size:      m.Size,
			Width:     m.Width,
			Height:    m.Height,
			Thumbnail: m.Thumbnail,
			Name:      m.Name,
		})
	}
	return out
}
