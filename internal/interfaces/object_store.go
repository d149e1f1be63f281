package interfaces

import "context"

// ObjectStore resolves source media and publishes derived media
type ObjectStore interface {
	// Fetch makes sourceRef available as a local file inside destDir
	Fetch(ctx context.Context, sourceRef, destDir string) (string, error)

	// Publish stores localPath under destinationKey and returns a public or signed ref
	Publish(ctx context.Context, localPath, destinationKey string) (string, error)
}
