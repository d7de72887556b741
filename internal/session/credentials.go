package session

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/vovakirdan/wirechat-irc/internal/proto"
)

// anonymousPass is accepted by the server for read-only logins.
const anonymousPass = "SCHMOOPIIE"

// Credentials identify the chat account. An empty Token logs in anonymously.
type Credentials struct {
	Username string
	Token    string
}

// Anonymous reports whether the credentials carry no token.
func (c Credentials) Anonymous() bool {
	return strings.TrimSpace(c.Token) == ""
}

func (c Credentials) normalized() Credentials {
	out := Credentials{
		Username: strings.ToLower(strings.TrimSpace(c.Username)),
		Token:    strings.TrimSpace(c.Token),
	}
	if out.Token == "" {
		out.Username = fmt.Sprintf("%s%d", proto.AnonymousPrefix, 10000+rand.Intn(90000))
		out.Token = anonymousPass
		return out
	}
	if !strings.HasPrefix(out.Token, "oauth:") {
		out.Token = "oauth:" + out.Token
	}
	return out
}

// Ready describes an authenticated session.
type Ready struct {
	Identity string
	At       time.Time
}
