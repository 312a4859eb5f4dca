package tools

import (
	"context"
	"errors"
	"log"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/store"
)

// NewGetPreferenceTool creates the get_preference tool. A missing key, or a
// store failure, yields a null value.
func NewGetPreferenceTool(prefs store.PreferenceStore) core.Tool {
	return New(core.ToolGetPreference).
		Description("Retrieve a stored user preference or personal information. Use this to recall information the user has previously shared about themselves.").
		Schema(ObjectSchema(map[string]interface{}{
			"key": StringProperty("The preference key to retrieve "+preferenceKeyHint),
		}, "key")).
		Handler(func(ctx context.Context, params *core.ToolParams) core.ToolResult {
			key := core.StringArg(params.Input, "key", "")

			value, err := prefs.GetPreference(ctx, params.UserID, key)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					log.Printf("[TOOLS] Error getting preference %q: %v", key, err)
				}
				return core.ToolResult{"key": key, "value": nil}
			}
			return core.ToolResult{"key": key, "value": value}
		})
}

// NewSavePreferenceTool creates the save_preference tool.
func NewSavePreferenceTool(prefs store.PreferenceStore) core.Tool {
	return New(core.ToolSavePreference).
		Description("Save or update a user preference or personal information. Use this when the user explicitly shares information about themselves that should be remembered for future conversations.").
		Schema(ObjectSchema(map[string]interface{}{
			"key":   StringProperty("The preference key "+preferenceKeyHint),
			"value": StringProperty("The preference value to store"),
		}, "key", "value")).
		Handler(func(ctx context.Context, params *core.ToolParams) core.ToolResult {
			key := core.StringArg(params.Input, "key", "")
			value := core.StringArg(params.Input, "value", "")

			success := true
			if err := prefs.SavePreference(ctx, params.UserID, key, value); err != nil {
				log.Printf("[TOOLS] Error saving preference %q: %v", key, err)
				success = false
			}
			return core.ToolResult{"success": success, "key": key, "value": value}
		})
}
