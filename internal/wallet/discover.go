package wallet

import "fmt"

type Options struct {
	PrivateKey         string
	KeystoreDir        string
	KeystorePassphrase string
	Networks           *Networks
	Approver           Approver
}

// Discover returns the configured provider: a raw key takes precedence over
// a keystore directory. With neither it returns ErrNoProviderFound.
func Discover(opts Options) (Provider, error) {
	if opts.Networks == nil {
		return nil, fmt.Errorf("%w: no network configured", ErrNoProviderFound)
	}
	approver := opts.Approver
	if approver == nil {
		approver = StaticApprover(false)
	}

	switch {
	case opts.PrivateKey != "":
		p, err := NewKeyProvider(opts.PrivateKey, opts.Networks, approver)
		if err != nil {
			return nil, err
		}
		fmt.Printf("[WALLET] Using key provider for %s\n", p.Address().Hex())
		return p, nil
	case opts.KeystoreDir != "":
		p := NewKeystoreProvider(opts.KeystoreDir, opts.KeystorePassphrase, opts.Networks, approver)
		fmt.Printf("[WALLET] Using keystore provider at %s (%d accounts)\n", opts.KeystoreDir, len(p.addresses()))
		return p, nil
	}
	return nil, ErrNoProviderFound
}
