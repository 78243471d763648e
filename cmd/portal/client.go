package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cesfam/portal/internal/client"
	"github.com/cesfam/portal/internal/config"
)

// apiClient builds a client with the session saved by "portal login".
func apiClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	path := cfg.TokenFile
	if path == "" {
		if path, err = client.DefaultTokenPath(); err != nil {
			return nil, fmt.Errorf("locate token file: %w", err)
		}
	}
	session := client.NewSession(client.FileTokenStore{Path: path})
	if err := session.Load(); err != nil {
		return nil, err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	return client.New(cfg.APIURL, session,
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithLogger(logger),
	), nil
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token for later client commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				token = strings.TrimSpace(os.Getenv("PORTAL_TOKEN"))
			}
			if token == "" {
				return errors.New("--token or PORTAL_TOKEN is required")
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			if err := c.Session().Login(token); err != nil {
				return err
			}
			creds := c.Session().Credentials()
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", creds.UserID, creds.Role)
			return nil
		},
	}
	cmd.Flags().String("token", "", "Bearer token issued by the portal")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			if err := c.Session().Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List a doctor's free appointment times on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			medico, _ := cmd.Flags().GetString("medico")
			fecha, _ := cmd.Flags().GetString("fecha")
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.Slots(cmd.Context(), medico, fecha)
			if err != nil {
				return err
			}
			switch res.Source {
			case client.SourceClosed:
				fmt.Fprintf(cmd.ErrOrStderr(), "no appointments on %s\n", res.Fecha)
			case client.SourceLocal, client.SourceDefault:
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s (showing %s slots)\n", res.Err, res.Source)
			}
			for _, h := range res.Horarios {
				fmt.Fprintln(cmd.OutOrStdout(), h)
			}
			return nil
		},
	}
	cmd.Flags().String("medico", "", "Doctor id")
	cmd.Flags().String("fecha", "", "Date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("medico")
	_ = cmd.MarkFlagRequired("fecha")
	return cmd
}

func bookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			in := client.Cita{}
			in.MedicoID, _ = flags.GetString("medico")
			in.PacienteID, _ = flags.GetString("paciente")
			in.Fecha, _ = flags.GetString("fecha")
			in.Hora, _ = flags.GetString("hora")
			in.Motivo, _ = flags.GetString("motivo")

			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			agenda := client.NewCitaAgenda(c, client.CitaFilter{MedicoID: in.MedicoID, Fecha: in.Fecha})
			if err := agenda.Refresh(cmd.Context()); err != nil {
				return err
			}
			cita, err := agenda.Book(cmd.Context(), in)
			if errors.Is(err, client.ErrConflict) {
				return fmt.Errorf("%s %s is no longer available: %w", in.Fecha, in.Hora, err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "booked %s on %s at %s (%s)\n", cita.ID, cita.Fecha, cita.Hora, cita.Status)
			return nil
		},
	}
	cmd.Flags().String("medico", "", "Doctor id")
	cmd.Flags().String("paciente", "", "Patient id (staff only)")
	cmd.Flags().String("fecha", "", "Date (YYYY-MM-DD)")
	cmd.Flags().String("hora", "", "Start time (HH:MM)")
	cmd.Flags().String("motivo", "", "Reason for the visit")
	for _, f := range []string{"medico", "fecha", "hora"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
