package protocol

import "github.com/pkg/errors"

func ValidateHandshake(h Handshake) error {
	if h.Type != FrameHandshake {
		return errors.Errorf("%s: expected handshake frame, got %q", ErrProtocolInvalidHandshake, h.Type)
	}
	if h.ProtocolVersion != ProtocolV1 {
		return errors.Errorf("%s: unsupported protocol_version %q", ErrProtocolInvalidHandshake, h.ProtocolVersion)
	}
	if h.BackendName == "" {
		return errors.Errorf("%s: missing backend_name", ErrProtocolInvalidHandshake)
	}
	seen := map[string]struct{}{}
	for i, name := range h.Capabilities.Commands {
		if name == "" {
			return errors.Errorf("%s: capabilities.commands[%d] is empty", ErrProtocolInvalidHandshake, i)
		}
		if _, ok := seen[name]; ok {
			return errors.Errorf("%s: duplicate command name %q", ErrProtocolInvalidHandshake, name)
		}
		seen[name] = struct{}{}
	}
	for i, name := range h.Capabilities.Events {
		if name == "" {
			return errors.Errorf("%s: capabilities.events[%d] is empty", ErrProtocolInvalidHandshake, i)
		}
	}
	return nil
}
