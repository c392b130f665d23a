package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// PasswordConfig delivers a server configuration that accepts a single set of credentials, offered
// either as a password or through keyboard-interactive authentication, and an ephemeral host key.
func PasswordConfig(uname, password string) (*ssh.ServerConfig, error) {
	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			return checkCredentials(uname, password, c, pass)
		},
		KeyboardInteractiveCallback: func(c ssh.ConnMetadata, client ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := client(c.User(), "", []string{"Password: "}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) != 1 {
				return nil, fmt.Errorf("unexpected answer count %d", len(answers))
			}
			return checkCredentials(uname, password, c, []byte(answers[0]))
		},
	}

	hostKey, err := generateHostKey()
	if err != nil {
		return nil, err
	}
	config.AddHostKey(hostKey)
	return config, nil
}

func checkCredentials(uname, password string, c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
	if c.User() == uname && string(pass) == password {
		return nil, nil
	}
	return nil, fmt.Errorf("password rejected for %q", c.User())
}

func generateHostKey() (ssh.Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(key)
}
