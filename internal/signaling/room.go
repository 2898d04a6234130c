package signaling

// Room pairs two peers exchanging signaling payloads. Occupants are kept
// in join order; the first is the initiator for the room's lifetime.
// Rooms are owned by the hub and only touched under the hub's lock.
type Room struct {
	id        string
	occupants []*Client
}

func newRoom(id string) *Room {
	return &Room{id: id}
}

func (r *Room) add(c *Client) {
	r.occupants = append(r.occupants, c)
}

func (r *Room) remove(c *Client) {
	for i, occupant := range r.occupants {
		if occupant == c {
			r.occupants = append(r.occupants[:i], r.occupants[i+1:]...)
			return
		}
	}
}

// others returns every occupant except c.
func (r *Room) others(c *Client) []*Client {
	peers := make([]*Client, 0, len(r.occupants))
	for _, occupant := range r.occupants {
		if occupant != c {
			peers = append(peers, occupant)
		}
	}
	return peers
}

func (r *Room) size() int {
	return len(r.occupants)
}
