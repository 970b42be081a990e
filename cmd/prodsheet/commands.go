package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/zenibako/prodsheet-golang/messages"
	"github.com/zenibako/prodsheet-golang/sheet"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	okBadge       = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).SetString("fits")
	overflowBadge = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stateStyles   = map[sheet.ItemState]lipgloss.Style{
		sheet.StateConflict:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		sheet.StateChangedOnly: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		sheet.StateEditedOnly:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		sheet.StateAccepted:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		sheet.StateRejected:    lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	}
)

func newRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "prodsheet",
		Short:         "Edit and print the weekly production sheet",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.configureLogging()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.ordersPath, "orders", "", "upstream orders JSON file, - for stdin")
	flags.IntVar(&app.session.Week, "week", app.session.Week, "ISO week of the session")
	flags.IntVar(&app.session.Year, "year", app.session.Year, "year of the session")
	flags.StringVar(&app.session.Day, "day", app.session.Day, "production day of the session")
	flags.BoolVar(&app.localOnly, "local", false, "do not connect to the sync store")

	root.AddCommand(
		newStatusCmd(app),
		newResolveCmd(app),
		newResetCmd(app),
		newAutofitCmd(app),
		newFontCmd(app),
		newReorderCmd(app),
		newEditCmd(app),
		newPrintCmd(app),
		newLockCmd(app),
		newNotifyCmd(app),
		newWatchCmd(app),
	)
	return root
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show blocks, page overflow and item changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := app.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Production sheet %s", app.session)))
			if s.editor.IsLocked() {
				fmt.Fprintln(out, overflowBadge.Render("locked"))
			}
			for _, r := range s.editor.Render(ctx) {
				fmt.Fprintf(out, "%2d  %-40s %-12s %s\n",
					r.Block.PositionIndex, r.Block.Title, mutedStyle.Render(fmt.Sprintf("font %d", r.Block.FontSize)), pageBadge(r))
				keys := make([]sheet.ItemKey, 0, len(r.States))
				for key := range r.States {
					keys = append(keys, key)
				}
				sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
				for _, key := range keys {
					state := r.States[key]
					fmt.Fprintf(out, "      %s %s\n", stateStyles[state].Render(string(state)), describeKey(key, r.DisplayValues[key]))
				}
			}

			users, err := s.editor.EditingUsers(ctx)
			if err != nil {
				log.Warn("Could not list editors", "error", err)
			} else if len(users) > 0 {
				fmt.Fprintln(out, mutedStyle.Render("Editing now: "+strings.Join(users, ", ")))
			}
			return nil
		},
	}
}

func pageBadge(r sheet.RenderedBlock) string {
	switch {
	case r.StatusErr != nil:
		return mutedStyle.Render("not measurable")
	case r.Status.IsOverflowing:
		return overflowBadge.Render(fmt.Sprintf("overflows, %d pages", r.Status.PageCount))
	default:
		return okBadge.String()
	}
}

func describeKey(key sheet.ItemKey, display string) string {
	parts, err := sheet.ParseKey(key)
	if err != nil {
		return fmt.Sprintf("%s: %s", key, display)
	}
	return fmt.Sprintf("%s (%s): %s", parts.ItemName, parts.CustomerName, display)
}

func newResolveCmd(app *App) *cobra.Command {
	var acceptAll, keepAll bool
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Decide conflicts between manual edits and portal changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if acceptAll && keepAll {
				return errors.New("--accept-all and --keep-all are exclusive")
			}
			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			conflicts := s.editor.Conflicts()
			if len(conflicts) == 0 {
				log.Info("No conflicts")
				return nil
			}
			if !acceptAll && !keepAll {
				return s.editor.PromptConflictResolution()
			}

			choice := sheet.ChoiceKeepEdit
			if acceptAll {
				choice = sheet.ChoiceAcceptPortal
			}
			choices := make(map[sheet.ItemKey]sheet.ConflictChoice, len(conflicts))
			for _, conflict := range conflicts {
				choices[conflict.Key] = choice
			}
			return s.editor.ApplyConflictChoices(choices)
		},
	}
	cmd.Flags().BoolVar(&acceptAll, "accept-all", false, "take the portal value for every conflict")
	cmd.Flags().BoolVar(&keepAll, "keep-all", false, "keep the manual edit for every conflict")
	return cmd
}

func newResetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Re-baseline the session on the current orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			return s.editor.ResetSnapshot(cmd.Context())
		},
	}
}

func newAutofitCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "autofit [block-id...]",
		Short: "Pick the largest font size that keeps blocks on one page",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := app.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			ids := args
			if len(ids) == 0 {
				for _, block := range s.editor.Blocks() {
					ids = append(ids, block.ID)
				}
			}
			pending := make([]<-chan sheet.AutoFitResult, 0, len(ids))
			for _, id := range ids {
				pending = append(pending, s.editor.RequestAutoFit(ctx, id))
			}
			var failed int
			for _, ch := range pending {
				result := <-ch
				if result.Err != nil {
					log.Warn("Auto-fit failed", "block", result.BlockID, "error", result.Err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  font %d\n", result.BlockID, result.FontSize)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d blocks could not be fitted", failed, len(ids))
			}
			return nil
		},
	}
}

func newFontCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "font <block-id> <delta>",
		Short: "Grow or shrink a block's font size",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid delta %q: %w", args[1], err)
			}
			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			return s.editor.SetFontSize(args[0], delta)
		},
	}
}

func newReorderCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <from> <to>",
		Short: "Move a block to another position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid position %q: %w", args[0], err)
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid position %q: %w", args[1], err)
			}
			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			return s.editor.Reorder(from, to)
		},
	}
}

func newEditCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <item-key> <quantity|name|customer|content> <value>",
		Short: "Change a displayed value by hand",
		Long: "Change a displayed value by hand. Item keys are block|recipe|customer, e.g.\n" +
			"  prodsheet edit 'Cafe Nord|Sourdough|Cafe Nord' quantity '15 kg'",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, field, value := sheet.ItemKey(args[0]), sheet.EditField(args[1]), args[2]
			if _, err := sheet.ParseKey(key); err != nil {
				return fmt.Errorf("item key %q: %w", args[0], err)
			}
			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			item, ok := s.editor.Item(key)
			if !ok {
				return fmt.Errorf("no item %q on the sheet", args[0])
			}
			if s.adapter == nil {
				log.Warn("No sync store configured, the edit is not shared or kept")
			}
			if err := s.editor.RecordEdit(key, field, originalValue(s.editor, item, field), value); err != nil {
				return err
			}
			state := s.editor.ItemState(key)
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", stateStyles[state].Render(string(state)), describeKey(key, s.editor.DisplayValue(key)))
			return nil
		},
	}
}

func originalValue(editor *sheet.Editor, item sheet.Item, field sheet.EditField) string {
	switch field {
	case sheet.FieldQuantity:
		return editor.DisplayValue(item.Key)
	case sheet.FieldName:
		return item.RecipeName
	case sheet.FieldCustomer:
		return item.CustomerName
	default:
		return item.Notes
	}
}

func newPrintCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Write the production sheet as plain text",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			comment := fmt.Sprintf("printed %s", time.Now().Format("2006-01-02 15:04"))
			if conflicts := s.editor.Conflicts(); len(conflicts) > 0 {
				comment += fmt.Sprintf(", %d unresolved conflicts", len(conflicts))
			}
			rendered := s.editor.Render(cmd.Context())
			overflowing := 0
			for _, r := range rendered {
				if r.Status.IsOverflowing {
					overflowing++
				}
			}
			if overflowing > 0 {
				comment += fmt.Sprintf(", %d blocks overflow one page", overflowing)
			}
			title := fmt.Sprintf("Production sheet %s", app.session)
			fmt.Fprint(cmd.OutOrStdout(), sheet.WriteRendered(title, rendered, comment))
			return nil
		},
	}
}

func newLockCmd(app *App) *cobra.Command {
	var unlock bool
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock the session against further edits",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			if s.adapter == nil {
				return errors.New("locking needs the sync store, set PRODSHEET_REDIS_URL")
			}
			return s.adapter.SetLock(cmd.Context(), !unlock)
		},
	}
	cmd.Flags().BoolVar(&unlock, "off", false, "remove the lock")
	return cmd
}

func newNotifyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Tell watching collaborators that the orders file changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			if s.adapter == nil {
				return errors.New("notifying needs the sync store, set PRODSHEET_REDIS_URL")
			}
			return s.adapter.PublishUpstreamMoved(cmd.Context())
		},
	}
}

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow collaborators' changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := app.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if s.adapter == nil {
				return errors.New("watching needs the sync store, set PRODSHEET_REDIS_URL")
			}
			if app.ordersPath != "-" {
				path := app.ordersPath
				s.editor.SetUpstreamSource(func(context.Context) ([]sheet.Order, error) {
					return loadOrders(path)
				})
			}

			go func() {
				ticker := time.NewTicker(max(app.cfg.PresenceTTL/2, time.Second))
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if err := s.adapter.Heartbeat(ctx); err != nil {
							log.Debug("Heartbeat failed", "error", err)
						}
					}
				}
			}()
			defer func() {
				leaveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = s.adapter.Leave(leaveCtx)
			}()

			log.Info("Watching session", "session", app.session)
			err = s.adapter.Subscribe(ctx, func(update messages.Update) {
				log.Info("Collaborator update", "type", update.Type, "author", update.Author, "key", update.Key)
				if err := s.editor.HandleRemoteUpdate(ctx, update); err != nil {
					log.Warn("Could not apply update", "error", err)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
