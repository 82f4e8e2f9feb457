package signal

import "github.com/0Azuree/Ledeqth-sub000/internal/core"

func (ctl *SignalWSController) handlePing(s *socket) {
	ctl.send(s, core.Envelope{Type: core.MsgPong})
}
