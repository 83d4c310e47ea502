// Package fuzztests houses Go fuzz harnesses that exercise the compiler
// front to back (source -> reader -> checker -> assembler -> encoder). Its
// goal is to smoke test robustness and guard against panics, hangs and
// invalid modules on arbitrary inputs.
//
// Назначение: прогонять произвольные байты через весь конвейер и проверять,
// что закодированный модуль принимает wazero.
//
// Не делает: генерацию корпусов, запись файлов, выполнение контрактов.
package fuzztests
