package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/boddenberg/cashbook-bfa-go/internal/service"
)

// tokenCmd mints an access token for local testing against a server that
// shares the same JWT secret.
func (c *cli) tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := c.v.GetString("jwt-secret")
			if secret == "" {
				return errors.New("a JWT secret is required (--jwt-secret or CASHBOOK_JWT_SECRET)")
			}
			now := c.now()
			tok, err := service.NewTokenVerifier(secret).Sign(&service.Claims{
				Email: email,
				Role:  "authenticated",
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   userID,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id placed in the sub claim")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().String("jwt-secret", "", "HS256 signing secret")
	_ = c.v.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
