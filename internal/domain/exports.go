package domain

import (
	interfaces "kakioki/internal/domain/interfaces"
	types "kakioki/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID                   = types.UserID
	ThreadID                 = types.ThreadID
	Fingerprint              = types.Fingerprint
	Friend                   = types.Friend
	Profile                  = types.Profile
	Account                  = types.Account
	BusMessage               = types.BusMessage
	X25519Public             = types.X25519Public
	X25519Private            = types.X25519Private
	KeyPair                  = types.KeyPair
	SharedKey                = types.SharedKey
	EncryptedKeyEnvelope     = types.EncryptedKeyEnvelope
	DeliveryState            = types.DeliveryState
	MessageState             = types.MessageState
	MediaType                = types.MediaType
	LinkPreview              = types.LinkPreview
	EncryptedMediaDescriptor = types.EncryptedMediaDescriptor
	MediaItem                = types.MediaItem
	DecryptedMedia           = types.DecryptedMedia
	MessageMetadata          = types.MessageMetadata
	StatusMetadata           = types.StatusMetadata
	ChatMessage              = types.ChatMessage
	Thread                   = types.Thread
	BlockState               = types.BlockState
	ThreadBlock              = types.ThreadBlock
	MessageRecord            = types.MessageRecord
	SendRequest              = types.SendRequest
	SendResult               = types.SendResult
	HistoryQuery             = types.HistoryQuery
	HistoryThread            = types.HistoryThread
	HistoryPage              = types.HistoryPage
	StatusRequest            = types.StatusRequest
	ControlRequest           = types.ControlRequest
	ControlResult            = types.ControlResult
	EventType                = types.EventType
	Event                    = types.Event
	MessageEvent             = types.MessageEvent
	StatusEvent              = types.StatusEvent
	ControlEvent             = types.ControlEvent
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	PersistenceService = interfaces.PersistenceService
	Directory          = interfaces.Directory
	RealtimeBus        = interfaces.RealtimeBus
	Subscription       = interfaces.Subscription
	AccountStore       = interfaces.AccountStore
	FriendStore        = interfaces.FriendStore
	OutboxStore        = interfaces.OutboxStore
	SecretStore        = interfaces.SecretStore
	KeyVault           = interfaces.KeyVault
	SharedKeyDeriver   = interfaces.SharedKeyDeriver
)

// Constants re-exported from the types subpackage.
const (
	DeliverySending   = types.DeliverySending
	DeliverySent      = types.DeliverySent
	DeliveryDelivered = types.DeliveryDelivered
	DeliveryRead      = types.DeliveryRead
	DeliveryFailed    = types.DeliveryFailed

	StateSending   = types.StateSending
	StateSent      = types.StateSent
	StateDelivered = types.StateDelivered
	StateRead      = types.StateRead
	StateError     = types.StateError

	MediaImage = types.MediaImage
	MediaVideo = types.MediaVideo
	MediaFile  = types.MediaFile

	EventMessage = types.EventMessage
	EventStatus  = types.EventStatus
	EventBlock   = types.EventBlock
	EventUnblock = types.EventUnblock
	EventRemoved = types.EventRemoved
)
