package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/roach88/idrecon/internal/contact"
)

// timeLayout renders timestamps in list output.
const timeLayout = "2006-01-02 15:04:05"

// clusterView is the payload of identify and show.
type clusterView struct {
	Contact contact.Consolidated `json:"contact"`
}

func (v clusterView) RenderText(w io.Writer) error {
	c := v.Contact
	secondaries := make([]string, len(c.SecondaryContactIDs))
	for i, id := range c.SecondaryContactIDs {
		secondaries[i] = strconv.FormatInt(id, 10)
	}
	_, err := fmt.Fprintf(w,
		"Primary contact:  %d\nEmails:           %s\nPhone numbers:    %s\nSecondary ids:    %s\n",
		c.PrimaryContactID,
		joinOrDash(c.Emails),
		joinOrDash(c.PhoneNumbers),
		joinOrDash(secondaries))
	return err
}

type addedView struct {
	Message   string `json:"message"`
	ContactID int64  `json:"contact_id"`
}

func (v addedView) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s (id %d)\n", v.Message, v.ContactID)
	return err
}

type messageView struct {
	Message string `json:"message"`
}

func (v messageView) RenderText(w io.Writer) error {
	_, err := fmt.Fprintln(w, v.Message)
	return err
}

type listView struct {
	Count    int               `json:"count"`
	Contacts []contact.Contact `json:"contacts"`
}

func (v listView) RenderText(w io.Writer) error {
	if v.Count == 0 {
		_, err := fmt.Fprintln(w, "No contacts.")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "EMAIL", "PHONE", "LINKED", "PRECEDENCE", "CREATED", "DELETED")
	for _, c := range v.Contacts {
		linked := "-"
		if c.LinkedID != nil {
			linked = strconv.FormatInt(*c.LinkedID, 10)
		}
		deleted := ""
		if c.DeletedAt != nil {
			deleted = c.DeletedAt.Format(timeLayout)
		}
		t.Row(
			strconv.FormatInt(c.ID, 10),
			valueOrDash(c.Email),
			valueOrDash(c.Phone),
			linked,
			string(c.LinkPrecedence),
			c.CreatedAt.Format(timeLayout),
			deleted,
		)
	}
	_, err := fmt.Fprintf(w, "%s\n%d contact(s)\n", t.Render(), v.Count)
	return err
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func valueOrDash(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}

// parseID parses a contact id argument.
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid contact id %q: must be an integer", arg))
	}
	return id, nil
}

// stringFlag returns the flag value when it was given on the command line.
func stringFlag(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

// int64Flag returns the flag value when it was given on the command line.
func int64Flag(cmd *cobra.Command, name string) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt64(name)
	return &v
}

// NewIdentifyCommand creates the identify command.
func NewIdentifyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Reconcile an email and/or phone number and print the cluster",
		Long: `Identify records the fragment if it carries new information, merges any
clusters it connects, and prints the consolidated view of the result.

Examples:
  idrecon identify --email lorraine@hillvalley.edu --phone 123456
  idrecon identify --phone 123456 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			e, err := openEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			view, err := e.reconciler.Identify(commandContext(cmd), contact.Fragment{
				Email: stringFlag(cmd, "email"),
				Phone: stringFlag(cmd, "phone"),
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(clusterView{Contact: view})
		},
	}

	cmd.Flags().String("email", "", "email address")
	cmd.Flags().String("phone", "", "phone number")

	return cmd
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Insert a contact row directly",
		Long: `Add writes a single contact without reconciliation. Secondaries must link
to a live contact.

Examples:
  idrecon add --email doc@hillvalley.edu
  idrecon add --phone 555 --linked-id 1 --precedence secondary`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			e, err := openEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			precedence, _ := cmd.Flags().GetString("precedence")
			id, err := e.reconciler.AddContact(commandContext(cmd), contact.NewContact{
				ID:         int64Flag(cmd, "id"),
				Email:      stringFlag(cmd, "email"),
				Phone:      stringFlag(cmd, "phone"),
				LinkedID:   int64Flag(cmd, "linked-id"),
				Precedence: contact.Precedence(precedence),
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(addedView{Message: "Contact added successfully", ContactID: id})
		},
	}

	cmd.Flags().Int64("id", 0, "explicit contact id (default: next free id)")
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().String("phone", "", "phone number")
	cmd.Flags().Int64("linked-id", 0, "primary contact id for a secondary")
	cmd.Flags().String("precedence", "", "link precedence (primary|secondary, default primary)")

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out := opts.formatter(cmd)
			e, err := openEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.reconciler.DeleteContact(commandContext(cmd), id); err != nil {
				return out.Fail(err)
			}
			return out.Success(messageView{Message: fmt.Sprintf("Contact %d deleted successfully", id)})
		},
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the consolidated cluster containing a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out := opts.formatter(cmd)
			e, err := openEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			view, err := e.reconciler.Cluster(commandContext(cmd), id)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(clusterView{Contact: view})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored contacts in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			e, err := openEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer e.Close()

			contacts, err := e.store.ListContacts(commandContext(cmd), all)
			if err != nil {
				return out.Fail(contact.NewStoreUnavailableError("list contacts", err))
			}
			return out.Success(listView{Count: len(contacts), Contacts: contacts})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include soft-deleted contacts")

	return cmd
}
