package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/ericfisherdev/keyhub/internal/config"
	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

func runOwners(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return usageError("owners: expected add, list or remove")
	}

	a, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	switch sub, rest := args[0], args[1:]; sub {
	case "add":
		return a.ownersAdd(ctx, rest, stdout)
	case "list":
		return a.ownersList(ctx, stdout)
	case "remove":
		return a.ownersRemove(ctx, rest, stdout)
	default:
		return usageError("owners: unknown command %q", sub)
	}
}

func (a *app) ownersAdd(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError("owners add <id> [nickname]")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return usageError("owners add: id must be a positive integer, got %q", args[0])
	}

	owner := model.Owner{ID: id}
	if len(args) == 2 {
		owner.Nickname = args[1]
	}
	if _, err := strconv.ParseInt(owner.Nickname, 10, 64); err == nil && owner.Nickname != args[0] {
		return usageError("owners add: a numeric nickname must equal the id")
	}

	created, err := a.owners.Create(ctx, owner)
	if err != nil {
		return err
	}
	return printJSON(stdout, toOwnerView(created))
}

func (a *app) ownersList(ctx context.Context, stdout io.Writer) error {
	owners, err := a.owners.ListAll(ctx)
	if err != nil {
		return err
	}
	views := make([]ownerView, 0, len(owners))
	for _, o := range owners {
		views = append(views, toOwnerView(o))
	}
	return printJSON(stdout, views)
}

// ownersRemove deletes an owner and its ledger records. The owner's keys stay
// on the Outline server as orphans; delete them first with keys delete.
func (a *app) ownersRemove(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return usageError("owners remove <id|nickname>")
	}

	ref := model.ParseOwnerRef(args[0])
	var owner *model.Owner
	var err error
	if nickname, ok := ref.Nickname(); ok {
		owner, err = a.owners.GetByNickname(ctx, nickname)
	} else {
		id, _ := ref.ID()
		owner, err = a.owners.GetByID(ctx, id)
	}
	if err != nil {
		return err
	}
	if owner == nil {
		return fmt.Errorf("owner %q not found", args[0])
	}
	if owner.IsSystem() {
		return usageError("owners remove: the system owner cannot be removed")
	}

	if _, err := a.owners.Delete(ctx, owner.ID); err != nil {
		return err
	}
	return printJSON(stdout, toOwnerView(*owner))
}
