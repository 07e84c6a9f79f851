package utils

import (
	"crypto/rand"
	"encoding/hex"

	gonanoid "github.com/matoous/go-nanoid"

	"github.com/LingByte/LingBridge/pkg/constants"
)

const roomIDAlphabet = "0123456789abcdef"

// RandText returns a random hex string of length n.
func RandText(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)[:n]
}

// NewRoomName generates a room name like "call-a1b2c3d4e5f6".
func NewRoomName() string {
	id, err := gonanoid.Generate(roomIDAlphabet, 12)
	if err != nil {
		id = RandText(12)
	}
	return constants.ROOM_PREFIX + id
}
