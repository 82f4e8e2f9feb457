package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

type whoAmI struct {
	User     domain.User `json:"user"`
	Channels []string    `json:"channels"`
}

func (ctl *SignalWSController) handleWhoAmI(s *socket) {
	resp := whoAmI{User: s.user, Channels: []string{}}
	for _, ch := range ctl.Hub.Registry.Channels() {
		if ctl.Hub.Registry.IsSubscribed(s.id, ch) {
			resp.Channels = append(resp.Channels, ch)
		}
	}
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("whoami marshal")
		return
	}
	ctl.send(s, core.Envelope{Type: core.MsgWhoAmI, SocketID: s.id, Data: data})
}
