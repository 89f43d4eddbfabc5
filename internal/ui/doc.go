// Package ui implements an interactive terminal dashboard using bubbletea's Elm architecture.
//
// The dashboard follows a running [tasks.Coordinator]:
//  1. [DashboardView] : API status, active tasks with their progress messages, active batches with
//     progress bars and pause state, unreported batches and live notifications
//  2. [ResultsView] : Browse completed transcriptions and batch summaries
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Coordinator updates arrive through a subscription channel; each one triggers a fresh snapshot so the view never
// reads coordinator state directly.
//
// Keyboard navigation uses vim-style bindings (j/k to select a batch, p to pause or resume it, r to refresh it,
// c to re-check the API, tab to switch views, q to quit) with contextual help displayed via charmbracelet/bubbles/help.
package ui
