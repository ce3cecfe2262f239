package domain

import (
	"crypto/sha256"
	"encoding/binary"
)

var (
	pseudonymAdjectives = []string{
		"Amber", "Brave", "Calm", "Clever", "Curious", "Daring", "Eager", "Gentle",
		"Happy", "Jolly", "Kind", "Lively", "Lucky", "Mighty", "Nimble", "Polite",
		"Quick", "Quiet", "Rapid", "Shy", "Silly", "Swift", "Witty", "Zesty",
	}
	pseudonymAnimals = []string{
		"Badger", "Beaver", "Otter", "Falcon", "Fox", "Hedgehog", "Heron", "Koala",
		"Lynx", "Moose", "Narwhal", "Owl", "Panda", "Penguin", "Rabbit", "Raccoon",
		"Salmon", "Seal", "Sparrow", "Tiger", "Turtle", "Walrus", "Wolf", "Yak",
	}
	pseudonymColors = []string{
		"#E57373", "#F06292", "#BA68C8", "#9575CD", "#7986CB", "#64B5F6",
		"#4FC3F7", "#4DD0E1", "#4DB6AC", "#81C784", "#AED581", "#FFB74D",
		"#FF8A65", "#A1887F", "#90A4AE", "#DCE775",
	}
)

type Pseudonym struct {
	Name     string
	Color    string
	Initials string
}

func DerivePseudonym(sessionID string) Pseudonym {
	sum := sha256.Sum256([]byte(sessionID))

	adj := pseudonymAdjectives[binary.BigEndian.Uint32(sum[0:4])%uint32(len(pseudonymAdjectives))]
	animal := pseudonymAnimals[binary.BigEndian.Uint32(sum[4:8])%uint32(len(pseudonymAnimals))]
	color := pseudonymColors[binary.BigEndian.Uint32(sum[8:12])%uint32(len(pseudonymColors))]

	return Pseudonym{
		Name:     adj + " " + animal,
		Color:    color,
		Initials: adj[:1] + animal[:1],
	}
}
