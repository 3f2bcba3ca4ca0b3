package cli

import (
	"github.com/spf13/cobra"
)

// Support contact shown by help-contact.
const (
	ContactMail    = "sample@ecom.com"
	contactMessage = "For any queries please reach out to:\nMail: " + ContactMail + "\n"
)

// NewHelpContactCommand creates the help-contact command.
func NewHelpContactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "help-contact",
		Short: "Show the support contact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			return out.Success(contactMessage, map[string]string{"mail": ContactMail})
		},
	}
}
