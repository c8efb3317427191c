package ui

import (
	"context"
	"strconv"

	"github.com/splitsmart/splitsmart-go/internal/domain"
	"github.com/splitsmart/splitsmart-go/internal/querycache"
)

// runGroups is the groups-list screen. The subscription stays open while the
// screen is active, so invalidations triggered elsewhere refresh the list
// before it is rendered again; navigating away closes it.
func (u *UI) runGroups(ctx context.Context) error {
	for {
		groups, sub, err := u.app.Groups(ctx)
		if err != nil {
			if authFailed(err) {
				if sub != nil {
					sub.Close()
				}
				return errAuthExpired
			}
			// Stale-with-error: show what we have plus a retry affordance.
			u.notice(err)
			u.renderGroups(groups)
			u.printf("[r] Retry  [q] Quit\n")
			choice, ok := u.prompt(">")
			if sub != nil {
				sub.Close()
			}
			if !ok || choice == "q" {
				return errQuit
			}
			continue
		}

		u.renderGroups(groups)
		u.printf("[#] Open group  [n] New group  [r] Refresh  [s] Cache stats  [o] Sign out  [q] Quit\n")
		choice, ok := u.prompt(">")

		drainEvents(sub)
		sub.Close()

		if !ok {
			return errQuit
		}

		switch choice {
		case "q":
			return errQuit
		case "o":
			if err := u.session.Logout(); err != nil {
				u.notice(err)
			}
			return nil
		case "n":
			if err := u.runCreateGroup(ctx); err != nil {
				return err
			}
		case "r":
			if err := u.app.RefetchGroups(ctx); err != nil {
				if authFailed(err) {
					return errAuthExpired
				}
				u.notice(err)
			}
		case "s":
			u.renderCacheStats()
		default:
			idx, err := strconv.Atoi(choice)
			if err != nil || idx < 1 || idx > len(groups) {
				continue
			}
			if err := u.runGroupDetail(ctx, groups[idx-1].ID); err != nil {
				return err
			}
		}
	}
}

func (u *UI) renderGroups(groups []domain.Group) {
	u.printf("\nYour groups\n")
	if len(groups) == 0 {
		u.printf("  (no groups yet)\n")
		return
	}
	for i, g := range groups {
		u.printf("  %d. %s", i+1, g.Name)
		if g.Description != "" {
			u.printf(" — %s", g.Description)
		}
		u.printf("\n")
	}
}

func (u *UI) runCreateGroup(ctx context.Context) error {
	name, ok := u.prompt("Group name:")
	if !ok {
		return errQuit
	}
	description, ok := u.prompt("Description (optional):")
	if !ok {
		return errQuit
	}
	currency, ok := u.prompt("Currency (3 letters, default USD):")
	if !ok {
		return errQuit
	}
	pictureURL, ok := u.prompt("Picture URL (optional):")
	if !ok {
		return errQuit
	}
	if currency == "" {
		currency = "USD"
	}

	group, err := u.app.CreateGroup(ctx, &domain.CreateGroupRequest{
		Name:            name,
		Description:     description,
		DefaultCurrency: currency,
		GroupPictureURL: pictureURL,
	})
	if err != nil {
		if authFailed(err) {
			return errAuthExpired
		}
		u.notice(err)
		return nil
	}
	u.printf("Group %q created.\n", group.Name)
	return nil
}

func (u *UI) renderCacheStats() {
	stats := u.metrics.GetCacheStats()
	u.printf("\nCache: %d hits, %d misses (%.0f%% hit rate), %d fetches, %d fetch errors, %d invalidations\n",
		stats.Hits, stats.Misses, stats.HitRate*100, stats.Fetches, stats.FetchErrors, stats.Invalidations)
}

// drainEvents drops pending subscription events before the screen loops,
// so stale notifications from this pass are not replayed on the next one.
func drainEvents(sub *querycache.Subscription) {
	for {
		select {
		case <-sub.Events():
		default:
			return
		}
	}
}
