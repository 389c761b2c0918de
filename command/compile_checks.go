package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateRequestMessage] = (*CreateRequestCommand)(nil)
	_ gocmd.Commander[CreateReplyMessage]   = (*CreateReplyCommand)(nil)
	_ gocmd.Commander[CreateAcceptMessage]  = (*CreateAcceptCommand)(nil)
)
