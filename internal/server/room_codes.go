package server

import "math/rand"

// GenerateRoomCode returns a 4-letter code not present in usedCodes. Codes
// are never returned to the pool, so a room id is unique for the lifetime of
// the process.
func GenerateRoomCode(usedCodes map[string]bool) string {
	for {
		code := make([]byte, 4)
		for i := range code {
			code[i] = 'A' + byte(rand.Intn(26))
		}
		if !usedCodes[string(code)] {
			return string(code)
		}
	}
}
