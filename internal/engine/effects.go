package engine

// Effect is an outbound instruction for the chat transport. The set is
// closed: SendText, EditMessage, AnswerCallback and DeleteMessage.
type Effect interface {
	isEffect()
}

type Button struct {
	Text string
	Data string
	URL  string
}

// InlineKeyboard is attached to a single message.
type InlineKeyboard struct {
	Rows [][]Button
}

// ReplyKeyboard replaces the user's keyboard.
type ReplyKeyboard struct {
	Rows    [][]string
	OneTime bool
}

type SendText struct {
	ChatId   int64
	Text     string
	Markdown bool
	Inline   *InlineKeyboard
	Reply    *ReplyKeyboard
}

type EditMessage struct {
	ChatId    int64
	MessageId int
	Text      string
	Markdown  bool
	Inline    *InlineKeyboard
}

// AnswerCallback acknowledges a button press. With Alert set the text is
// shown as a modal instead of a toast.
type AnswerCallback struct {
	CallbackId string
	Text       string
	Alert      bool
}

type DeleteMessage struct {
	ChatId    int64
	MessageId int
}

func (SendText) isEffect()       {}
func (EditMessage) isEffect()    {}
func (AnswerCallback) isEffect() {}
func (DeleteMessage) isEffect()  {}

func inline(rows ...[]Button) *InlineKeyboard {
	return &InlineKeyboard{Rows: rows}
}

func row(buttons ...Button) []Button {
	return buttons
}

func btn(text, data string) Button {
	return Button{Text: text, Data: data}
}

func link(text, url string) Button {
	return Button{Text: text, URL: url}
}
