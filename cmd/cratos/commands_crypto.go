package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/cratos-ai/cratos/internal/crypto"
	"github.com/spf13/cobra"
)

// buildCryptoCmd exposes the end-to-end session cipher (spec.md §8
// testable property 12) over the CLI: generate a keypair, then encrypt or
// decrypt a line of stdin against a hex-encoded key.
func buildCryptoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crypto",
		Short: "Generate session keys and exercise the E2E session cipher",
	}
	cmd.AddCommand(buildCryptoKeygenCmd(), buildCryptoEncryptCmd(), buildCryptoDecryptCmd())
	return cmd
}

func buildCryptoKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an X25519 keypair and print secret/public as hex",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, public, err := crypto.GenerateKeypair()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "secret: %s\n", hex.EncodeToString(secret[:]))
			fmt.Fprintf(out, "public: %s\n", hex.EncodeToString(public[:]))
			return nil
		},
	}
}

func buildCryptoEncryptCmd() *cobra.Command {
	var keyHex string
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt one line of stdin under a hex session key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cipher, err := sessionCipherFromHex(keyHex)
			if err != nil {
				return err
			}
			line, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			encrypted, err := cipher.Encrypt(line)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %d\n", encrypted.Version)
			fmt.Fprintf(out, "nonce: %s\n", hex.EncodeToString(encrypted.Nonce))
			fmt.Fprintf(out, "ciphertext: %s\n", hex.EncodeToString(encrypted.Ciphertext))
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "Hex-encoded 32-byte session key (required)")
	cmd.MarkFlagRequired("key")
	return cmd
}

func buildCryptoDecryptCmd() *cobra.Command {
	var keyHex, nonceHex, ciphertextHex string
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a nonce/ciphertext pair under a hex session key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cipher, err := sessionCipherFromHex(keyHex)
			if err != nil {
				return err
			}
			nonce, err := hex.DecodeString(nonceHex)
			if err != nil {
				return fmt.Errorf("decode nonce: %w", err)
			}
			ciphertext, err := hex.DecodeString(ciphertextHex)
			if err != nil {
				return fmt.Errorf("decode ciphertext: %w", err)
			}
			plaintext, err := cipher.Decrypt(&crypto.EncryptedData{Version: 1, Nonce: nonce, Ciphertext: ciphertext})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(plaintext))
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "Hex-encoded 32-byte session key (required)")
	cmd.Flags().StringVar(&nonceHex, "nonce", "", "Hex-encoded 12-byte nonce (required)")
	cmd.Flags().StringVar(&ciphertextHex, "ciphertext", "", "Hex-encoded ciphertext (required)")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("nonce")
	cmd.MarkFlagRequired("ciphertext")
	return cmd
}

func sessionCipherFromHex(keyHex string) (*crypto.SessionCipher, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return crypto.NewSessionCipher(key), nil
}

func readLine(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return scanner.Bytes(), nil
}
