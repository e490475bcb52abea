package fedtrustcmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-fedtrust/credential/common/provider"
	"github.com/pilacorp/go-fedtrust/credential/vc"
	"github.com/pilacorp/go-fedtrust/did"
)

func TestIdentityCmdContents(t *testing.T) {
	cmd := GetIdentityCmd()

	require.Equal(t, "identity", cmd.Use)
	require.Len(t, cmd.Commands(), 1)

	create := cmd.Commands()[0]
	require.Equal(t, "create", create.Use)
	checkFlagPropertiesCorrect(t, create, identityPathFlagName, identityPathFlagUsage)
	checkFlagPropertiesCorrect(t, create, roleFlagName, roleFlagUsage)
}

func TestCreateIdentity(t *testing.T) {
	dir := t.TempDir()
	docsDir := filepath.Join(dir, "docs")
	path := filepath.Join(dir, "issuer.json")

	out := executeCmd(t, GetIdentityCmd(), "create",
		"--"+identityPathFlagName, path,
		"--"+passphraseFlagName, "secret",
		"--"+roleFlagName, roleIssuer,
		"--"+didDocsDirFlagName, docsDir,
	)

	id, err := did.LoadIdentity(path, "secret")
	require.NoError(t, err)
	assert.Equal(t, id.DID(), strings.TrimSpace(out))
	assert.Equal(t, did.IssuerKeyFragment, id.KeyFragment())

	doc, err := provider.NewDirResolver(docsDir).Resolve(context.Background(), id.DID())
	require.NoError(t, err)
	assert.Equal(t, id.Document().VerificationMethod, doc.VerificationMethod)
}

func TestCreateIdentityInvalidArgs(t *testing.T) {
	t.Run("blank identity path", func(t *testing.T) {
		cmd := GetIdentityCmd()
		cmd.SetArgs([]string{"create", "--" + identityPathFlagName, ""})

		err := cmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), "identity-path value is empty")
	})

	t.Run("missing identity path", func(t *testing.T) {
		cmd := GetIdentityCmd()
		cmd.SetArgs([]string{"create"})

		err := cmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), identityPathFlagName)
	})

	t.Run("unsupported role", func(t *testing.T) {
		cmd := GetIdentityCmd()
		cmd.SetArgs([]string{"create",
			"--" + identityPathFlagName, filepath.Join(t.TempDir(), "id.json"),
			"--" + roleFlagName, "auditor",
		})

		err := cmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), "unsupported role: auditor")
	})
}

func TestIssuerStartInvalidArgs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issuer.json")

	tests := []struct {
		name string
		args []string
		err  string
	}{
		{
			name: "no resolver",
			args: []string{"--" + identityPathFlagName, path},
			err:  "one of did-docs-dir or did-resolver-url must be set",
		},
		{
			name: "bad idle timeout",
			args: []string{"--" + identityPathFlagName, path, "--" + didDocsDirFlagName, t.TempDir(),
				"--" + idleTimeoutFlagName, "soon"},
			err: "invalid value [soon]",
		},
		{
			name: "bad max strikes",
			args: []string{"--" + identityPathFlagName, path, "--" + didDocsDirFlagName, t.TempDir(),
				"--" + maxStrikesFlagName, "-1"},
			err: "invalid value [-1] for max-strikes",
		},
		{
			name: "bad format",
			args: []string{"--" + identityPathFlagName, path, "--" + didDocsDirFlagName, t.TempDir(),
				"--" + credentialFormatFlagName, "cbor"},
			err: "unsupported credential format: cbor",
		},
		{
			name: "missing identity",
			args: []string{"--" + identityPathFlagName, path, "--" + didDocsDirFlagName, t.TempDir()},
			err:  "failed to read identity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := GetIssuerCmd()
			cmd.SetArgs(append([]string{"start"}, tt.args...))

			err := cmd.Execute()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestParticipantRunInvalidArgs(t *testing.T) {
	base := []string{
		"--" + identityPathFlagName, filepath.Join(t.TempDir(), "p.json"),
		"--" + didDocsDirFlagName, t.TempDir(),
		"--" + issuerAddrFlagName, "127.0.0.1:1",
		"--" + modelPathFlagName, "model.bin",
		"--" + modelsOutFlagName, "models.json",
	}

	tests := []struct {
		name string
		args []string
		err  string
	}{
		{
			name: "missing participants",
			args: base,
			err:  participantsFlagName,
		},
		{
			name: "zero participants",
			args: append(append([]string{}, base...), "--"+participantsFlagName, "0"),
			err:  "invalid value [0] for participants",
		},
		{
			name: "unsupported ledger",
			args: append(append([]string{}, base...), "--"+participantsFlagName, "2", "--"+ledgerTypeFlagName, "iota"),
			err:  "unsupported ledger type: iota",
		},
		{
			name: "kafka without seeds",
			args: append(append([]string{}, base...), "--"+participantsFlagName, "2", "--"+ledgerTypeFlagName, ledgerKafka),
			err:  "ledger-url is required for the kafka ledger",
		},
		{
			name: "s3 without bucket",
			args: append(append([]string{}, base...), "--"+participantsFlagName, "2",
				"--"+blobStoreTypeFlagName, blobStoreS3),
			err: "s3-bucket is required for the s3 blob store",
		},
		{
			name: "postgres without url",
			args: append(append([]string{}, base...), "--"+participantsFlagName, "2",
				"--"+blobStoreTypeFlagName, blobStorePostgres),
			err: "blob-store-url is required for the postgres blob store",
		},
		{
			name: "unsupported blob store",
			args: append(append([]string{}, base...), "--"+participantsFlagName, "2",
				"--"+blobStoreTypeFlagName, "ipfs"),
			err: "unsupported blob store type: ipfs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := GetParticipantCmd()
			cmd.SetArgs(append([]string{"run"}, tt.args...))

			err := cmd.Execute()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestParametersFromEnv(t *testing.T) {
	t.Setenv(identityPathEnvKey, "/tmp/id.json")
	t.Setenv(didResolverURLEnvKey, "http://resolver.example")
	t.Setenv(maxStrikesEnvKey, "3")
	t.Setenv(challengeWindowEnvKey, "1m")

	cmd := createIssuerStartCmd()

	p, err := getIssuerParameters(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/id.json", p.identity.path)
	assert.Equal(t, "http://resolver.example", p.resolver.resolverURL)
	assert.Equal(t, 3, p.maxStrikes)
	assert.Equal(t, time.Minute, p.challengeWindow)
	assert.Equal(t, defaultListenAddr, p.listenAddr)
}

func TestParseFormat(t *testing.T) {
	f, err := parseFormat("")
	require.NoError(t, err)
	assert.Equal(t, vc.FormatEmbedded, f)

	f, err = parseFormat("jwt")
	require.NoError(t, err)
	assert.Equal(t, vc.FormatJWT, f)
}

func TestCleanupsRunInReverse(t *testing.T) {
	var order []int
	var c cleanups
	c.add(func() { order = append(order, 1) })
	c.add(func() { order = append(order, 2) })
	c.run()

	assert.Equal(t, []int{2, 1}, order)
}

func TestLoadCredential(t *testing.T) {
	issuer, err := did.NewIdentity(did.DefaultMethod, did.IssuerKeyFragment)
	require.NoError(t, err)
	holder, err := did.NewIdentity(did.DefaultMethod, did.HolderKeyFragment)
	require.NoError(t, err)

	issue := func(t *testing.T, issuedAt time.Time) []byte {
		t.Helper()

		engine := vc.NewEngine(vc.WithExpiry(time.Hour), vc.WithClock(func() time.Time { return issuedAt }))
		cred, err := engine.Issue(context.Background(), issuer, holder.DID(), "", nil)
		require.NoError(t, err)

		return cred.Raw()
	}

	t.Run("no path", func(t *testing.T) {
		raw, err := loadCredential("")
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("missing file", func(t *testing.T) {
		raw, err := loadCredential(filepath.Join(t.TempDir(), "credential.json"))
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("valid credential is reused", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "credential.json")
		saved := issue(t, time.Now())
		require.NoError(t, saveCredential(path, saved))

		raw, err := loadCredential(path)
		require.NoError(t, err)
		assert.Equal(t, saved, raw)
	})

	t.Run("expired credential is dropped", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "credential.json")
		require.NoError(t, saveCredential(path, issue(t, time.Now().Add(-2*time.Hour))))

		raw, err := loadCredential(path)
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "credential.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

		_, err := loadCredential(path)
		require.Error(t, err)
	})
}

// TestCohortRound runs an issuer and a participant process in one round, with a fake
// trainer pacing the participant.
func TestCohortRound(t *testing.T) {
	dir := t.TempDir()
	docsDir := filepath.Join(dir, "docs")
	issuerPath := filepath.Join(dir, "issuer.json")
	holderPath := filepath.Join(dir, "holder.json")

	issuerDID := strings.TrimSpace(executeCmd(t, GetIdentityCmd(), "create",
		"--"+identityPathFlagName, issuerPath,
		"--"+roleFlagName, roleIssuer,
		"--"+didDocsDirFlagName, docsDir,
	))
	executeCmd(t, GetIdentityCmd(), "create",
		"--"+identityPathFlagName, holderPath,
		"--"+didDocsDirFlagName, docsDir,
	)

	issuerAddr := freeAddr(t)
	trainerAddr := freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	issuerDone := make(chan error, 1)
	go func() {
		cmd := GetIssuerCmd()
		cmd.SetArgs([]string{"start",
			"--" + identityPathFlagName, issuerPath,
			"--" + didDocsDirFlagName, docsDir,
			"--" + listenAddrFlagName, issuerAddr,
		})
		issuerDone <- cmd.ExecuteContext(ctx)
	}()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", issuerAddr)
		if err != nil {
			return false
		}
		_ = conn.Close()

		return true
	}, 10*time.Second, 20*time.Millisecond)

	modelPath := filepath.Join(dir, "model.bin")
	modelsOut := filepath.Join(dir, "models.json")
	credentialPath := filepath.Join(dir, "credential.json")
	require.NoError(t, os.WriteFile(modelPath, []byte("local weights"), 0o600))

	replies := make(chan []string, 1)
	go runTrainer(trainerAddr, replies)

	cmd := GetParticipantCmd()
	cmd.SetArgs([]string{"run",
		"--" + identityPathFlagName, holderPath,
		"--" + didDocsDirFlagName, docsDir,
		"--" + issuerAddrFlagName, issuerAddr,
		"--" + issuerDIDFlagName, issuerDID,
		"--" + credentialPathFlagName, credentialPath,
		"--" + trainerAddrFlagName, trainerAddr,
		"--" + modelPathFlagName, modelPath,
		"--" + modelsOutFlagName, modelsOut,
		"--" + participantsFlagName, "1",
		"--" + roundsFlagName, "1",
	})
	require.NoError(t, cmd.ExecuteContext(ctx))

	select {
	case got := <-replies:
		assert.Equal(t, []string{"go", "stop"}, got)
	case <-time.After(10 * time.Second):
		t.Fatal("trainer did not finish")
	}

	raw, err := os.ReadFile(modelsOut)
	require.NoError(t, err)

	var models []string
	require.NoError(t, json.Unmarshal(raw, &models))
	assert.Equal(t, []string{"local weights"}, models)

	saved, err := os.ReadFile(credentialPath)
	require.NoError(t, err)
	credential, err := vc.Parse(saved)
	require.NoError(t, err)
	assert.Equal(t, issuerDID, credential.Contents.Issuer)

	cancel()
	select {
	case err := <-issuerDone:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("issuer did not stop")
	}
}

// runTrainer connects to the participant once it listens and plays one round.
func runTrainer(addr string, replies chan<- []string) {
	var conn net.Conn

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		var err error
		if conn, err = net.Dial("tcp", addr); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if conn == nil {
		replies <- nil
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	var got []string
	for _, line := range []string{"ready\n", "1\n"} {
		if _, err := conn.Write([]byte(line)); err != nil {
			break
		}
		reply, err := r.ReadString('\n')
		if err != nil {
			break
		}
		got = append(got, strings.TrimSpace(reply))
	}

	replies <- got
}

func executeCmd(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())

	return out.String()
}

func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return addr
}

func checkFlagPropertiesCorrect(t *testing.T, cmd *cobra.Command, flagName, flagUsage string) {
	t.Helper()

	flag := cmd.Flag(flagName)

	require.NotNil(t, flag)
	require.Equal(t, flagName, flag.Name)
	require.Equal(t, flagUsage, flag.Usage)
	require.Empty(t, flag.Value.String())
}
