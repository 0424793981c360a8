package wsupgrade

import "fmt"

// NegotiateSubprotocol applies RFC 6455 §4.2.2's subprotocol rule: if the
// client offered no subprotocols, the server must not choose one; if the
// client offered subprotocols, the server must choose exactly one of them
// (a server choosing none of the offered protocols, or inventing one not
// offered, is a protocol violation).
//
// Grounded on the rust original's client/ws/mod.rs subprotocol negotiation,
// which handles the same four combinations of (requested empty/non-empty)
// x (chosen empty/non-empty).
func NegotiateSubprotocol(requested []string, serverChosen string) (string, error) {
	switch {
	case len(requested) == 0 && serverChosen == "":
		return "", nil
	case len(requested) == 0 && serverChosen != "":
		return "", fmt.Errorf("wsupgrade: server chose subprotocol %q but none was offered", serverChosen)
	case len(requested) > 0 && serverChosen == "":
		return "", fmt.Errorf("wsupgrade: server did not choose any of the offered subprotocols %v", requested)
	default:
		for _, want := range requested {
			if want == serverChosen {
				return serverChosen, nil
			}
		}
		return "", fmt.Errorf("wsupgrade: server chose subprotocol %q which was not offered (offered %v)", serverChosen, requested)
	}
}
