// Command token mints access tokens for box office terminals, door
// scanners and the payment gateway.  It signs with JWT_SECRET from the
// environment or .env file; tokens live ACCESS_TOKEN_TTL_MIN unless -ttl
// says otherwise.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/iliyamo/cinema-seat-booking/internal/config"
	"github.com/iliyamo/cinema-seat-booking/internal/middleware"
	"github.com/iliyamo/cinema-seat-booking/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}

	subject := flag.String("sub", "", "token subject, e.g. box-office-1")
	role := flag.String("role", middleware.RoleStaff, "STAFF or PAYMENT")
	ttl := flag.Duration("ttl", cfg.AccessTTL(), "token lifetime")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "token: -sub is required")
		os.Exit(2)
	}
	if *role != middleware.RoleStaff && *role != middleware.RolePayment {
		fmt.Fprintf(os.Stderr, "token: unknown role %q\n", *role)
		os.Exit(2)
	}

	tok, err := utils.NewAccessToken(cfg.JWTSecret, *subject, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintln(os.Stderr, "expires", tok.Exp.Format(time.RFC3339))
}
