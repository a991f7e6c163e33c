package engine

// Event is an inbound occurrence the engine reacts to. The set is closed:
// TextMessage, ButtonPress and DepositNotification.
type Event interface {
	isEvent()
}

// TextMessage is free text typed by the user or a reply-keyboard tap.
type TextMessage struct {
	UserId string
	ChatId int64
	Text   string
}

// ButtonPress is an inline keyboard callback.
type ButtonPress struct {
	UserId     string
	ChatId     int64
	MessageId  int
	CallbackId string
	Data       string
}

// DepositNotification reports an inbound on-chain transfer. It is untrusted
// until the address resolves to a known account.
type DepositNotification struct {
	Address  string
	Amount   string
	Currency string
	TxHash   string
	Network  string
}

func (TextMessage) isEvent()         {}
func (ButtonPress) isEvent()         {}
func (DepositNotification) isEvent() {}
