// Package pipeline реализует ядро оркестрации provisioning-пайплайна:
// граф зависимостей этапов, состояние одного запуска, адаптивную
// стратегию выполнения и цикл координации.
//
// Компоненты:
//   - graph.go — статический граф зависимостей и параллельные группы
//   - state.go — состояние одного запуска (результаты этапов, ресурсы, тайминг)
//   - strategy.go — стратегия выполнения, выбираемая по остатку бюджета времени
//   - coordinator.go — реестр активных запусков и цикл выполнения этапов
//
// Пакет не выполняет этапы сам: исполнители этапов передаются
// вызывающей стороной через контракт StageExecutor.
package pipeline
