package app

import (
	"context"

	"qs_chat/internal/cryptographic/kem"
	"qs_chat/internal/cryptographic/signature"
	"qs_chat/internal/model"
	identityRepo "qs_chat/internal/repository/identity"
)

// GetIdentityAndCreateIfNotExist loads the user's identity, generating and
// registering fresh ML-KEM and ML-DSA key pairs on first run.
func GetIdentityAndCreateIfNotExist(ctx context.Context, repo *identityRepo.IdentityRepo, name string) (*model.Identity, error) {
	id, err := repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if id != nil {
		return id, nil
	}

	kemPub, kemPriv, err := kem.NewProvider().GenerateKEMKeyPair()
	if err != nil {
		return nil, err
	}

	sigPub, sigPriv, err := signature.NewMLDSAKeyPair()
	if err != nil {
		return nil, err
	}

	id = &model.Identity{
		Name:    name,
		KEMPub:  kemPub,
		KEMPriv: kemPriv,
		SigPub:  sigPub,
		SigPriv: sigPriv,
	}

	_, err = repo.Create(ctx, id)
	if err != nil {
		return nil, err
	}

	return id, nil
}
