package mirror

import (
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Credentials are static registry credentials. The zero value falls back to
// the Docker keychain.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) option() remote.Option {
	if c.Username != "" {
		return remote.WithAuth(&authn.Basic{Username: c.Username, Password: c.Password})
	}
	return remote.WithAuthFromKeychain(authn.DefaultKeychain)
}
