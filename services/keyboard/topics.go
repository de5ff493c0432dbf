package keyboard

import "chatpad-go/bus"

const (
	TokKeyboard = "keyboard"
	TokConfig   = "config"
	TokEvent    = "event"
	TokMacro    = "macro"
	TokNewline  = "newline"
	TokText     = "text"
	TokChatpad  = "chatpad"
	TokState    = "state"

	CtrlGet    = "get"
	CtrlSet    = "set"
	CtrlStart  = "start"
	CtrlStop   = "stop"
	CtrlStatus = "status"
)

// keyboard/event carries types.KeyEvent values.
func TopicEvent() bus.Topic { return bus.T(TokKeyboard, TokEvent) }

// keyboard/chatpad/state is the retained types.ChatpadState.
func TopicChatpadState() bus.Topic { return bus.T(TokKeyboard, TokChatpad, TokState) }

func topicConfig() bus.Topic { return bus.T(TokConfig, TokKeyboard) }

func TopicMacro(verb string) bus.Topic { return bus.T(TokKeyboard, TokMacro, verb) }

func TopicNewline() bus.Topic { return bus.T(TokKeyboard, TokNewline, CtrlSet) }

func TopicText() bus.Topic { return bus.T(TokKeyboard, TokText) }

// keyboard/chatpad/<verb> with verb one of start, stop, status.
func TopicChatpad(verb string) bus.Topic { return bus.T(TokKeyboard, TokChatpad, verb) }
