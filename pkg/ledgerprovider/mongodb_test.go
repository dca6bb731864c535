/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledgerprovider

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/merosign/merosign/pkg/restapi/models"
	"github.com/merosign/merosign/pkg/storage"
)

const (
	mongoDBImage = "mongo"
	mongoDBTag   = "4.0.0"
)

// startMongoDB runs a throwaway MongoDB container and returns its URL. The test is skipped when Docker
// is not reachable.
func startMongoDB(t *testing.T) string {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %s", err)
	}

	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{Repository: mongoDBImage, Tag: mongoDBTag})
	require.NoError(t, err)

	t.Cleanup(func() {
		if purgeErr := pool.Purge(resource); purgeErr != nil {
			t.Logf("failed to purge mongodb container: %s", purgeErr)
		}
	})

	url := fmt.Sprintf("mongodb://localhost:%s", resource.GetPort("27017/tcp"))

	pool.MaxWait = time.Minute

	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client, connectErr := mongo.Connect(ctx, options.Client().ApplyURI(url))
		if connectErr != nil {
			return connectErr
		}

		defer client.Disconnect(ctx) //nolint:errcheck

		return client.Ping(ctx, nil)
	})
	require.NoError(t, err)

	return url
}

func TestProvider_MongoDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mongodb test in short mode")
	}

	url := startMongoDB(t)

	storageProvider, err := storage.NewProvider(storage.DatabaseTypeMongoDB, url, "merosign_test")
	require.NoError(t, err)

	defer storageProvider.Close() //nolint:errcheck

	p, err := New(storageProvider)
	require.NoError(t, err)

	newContextWithDocument(t, p)

	for _, user := range []string{alice, admin} {
		require.NoError(t, p.RecordConsent(user, testContextID, testDocumentID))

		_, err = p.SignDocument(user, &models.SignDocumentRequest{
			DocumentID: testDocumentID, ConsentAcknowledged: true, SignedHash: hashV1,
		})
		require.NoError(t, err)
	}

	progress, err := p.GetSigningProgress(testContextID)
	require.NoError(t, err)
	require.Equal(t, []string{admin, alice}, progress.ConsentedUsers)
	require.Equal(t, models.DocumentFullySigned, progress.DocumentStatuses[0].Status)

	status, err := p.VerifyDocumentHash(testDocumentID, hashV1)
	require.NoError(t, err)
	require.Equal(t, models.FinalMatch, status)
}
